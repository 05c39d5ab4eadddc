package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

var errConnClosed = errors.New("websocket: connection closed")

// conn - исходящая половина сокета. Писать в *websocket.Conn может только writePump.
type conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	writeTimeout time.Duration
	pingInterval time.Duration

	send chan domain.Envelope
	quit chan struct{} // больше ничего не принимаем, дописываем очередь и шлём close
	dead chan struct{} // writePump завершился

	quitOnce sync.Once
}

func newConn(ws *websocket.Conn, log *slog.Logger, opts Options) *conn {
	return &conn{
		ws:           ws,
		log:          log,
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		send:         make(chan domain.Envelope, 64),
		quit:         make(chan struct{}),
		dead:         make(chan struct{}),
	}
}

// Send реализует ports.EnvelopeSink.
func (c *conn) Send(ctx context.Context, env domain.Envelope) error {
	select {
	case <-c.quit:
		return errConnClosed
	case <-c.dead:
		return errConnClosed
	default:
	}

	select {
	case c.send <- env:
		return nil
	case <-c.quit:
		return errConnClosed
	case <-c.dead:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close просит writePump дописать очередь и закрыть соединение.
func (c *conn) close() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.dead)
	}()

	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				c.log.Warn("websocket write failed", "error", err)
				return
			}

		case <-c.quit:
			if err := c.drain(); err != nil {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain дописывает то, что уже в очереди: терминальный конверт должен уйти до close.
func (c *conn) drain() error {
	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *conn) write(env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Error("marshal envelope", "type", env.Type, "error", err)
		return nil
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
