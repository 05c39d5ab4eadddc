package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/larriantoniy/tg_session_web/internal/domain"
	"github.com/larriantoniy/tg_session_web/internal/ports"
)

// Negotiation - то, что канал запускает после init.
type Negotiation interface {
	Run(ctx context.Context, init json.RawMessage) (*domain.Credential, error)
	Deliver(value string) bool
}

// NegotiationFactory создаёт переговоры, пишущие в данный канал.
type NegotiationFactory func(sink ports.EnvelopeSink) Negotiation

type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
	ReadLimit    int64
	InboundRate  float64 // сообщений в секунду
	InboundBurst int
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 * 1024
	}
	if o.InboundRate <= 0 {
		o.InboundRate = 5
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = 10
	}
	return o
}

// Handler обслуживает /ws: один сокет - одни переговоры.
type Handler struct {
	open     NegotiationFactory
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(open NegotiationFactory, log *slog.Logger, opts Options) *Handler {
	return &Handler{
		open: open,
		log:  log,
		opts: opts.withDefaults(),
		upgrader: websocket.Upgrader{
			// страница и сокет живут на одном хосте, за обратным прокси Origin бывает любым
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	log := h.log.With("remote", r.RemoteAddr)
	c := newConn(wsConn, log, h.opts)
	go c.writePump()

	wsConn.SetReadLimit(h.opts.ReadLimit)
	_ = wsConn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	first, ok := h.readInit(c, wsConn, log)
	if !ok {
		c.close()
		<-c.dead
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	neg := h.open(c)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel() // клиент ушёл - переговоры брошены
		h.readLoop(wsConn, neg, log)
	}()

	h.run(ctx, c, neg, first.Data, log)

	c.close()
	<-c.dead
	<-readDone
}

// readInit ждёт первое сообщение. Всё, кроме init, отклоняется конвертом error.
func (h *Handler) readInit(c *conn, wsConn *websocket.Conn, log *slog.Logger) (domain.Inbound, bool) {
	_, data, err := wsConn.ReadMessage()
	if err != nil {
		log.Debug("websocket closed before init", "error", err)
		return domain.Inbound{}, false
	}

	in, err := domain.DecodeInbound(data)
	if err != nil {
		log.Warn("malformed first message", "error", err)
		_ = c.Send(context.Background(), domain.ErrorEnvelope("Malformed message: "+err.Error()))
		return domain.Inbound{}, false
	}
	if in.Type != domain.TypeInit {
		log.Warn("first message is not init", "type", in.Type)
		_ = c.Send(context.Background(), domain.ErrorEnvelope(fmt.Sprintf("Expected init, got %s", in.Type)))
		return domain.Inbound{}, false
	}
	return in, true
}

func (h *Handler) run(ctx context.Context, c *conn, neg Negotiation, init json.RawMessage, log *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("websocket handler panicked", "panic", rec)
			_ = c.Send(ctx, domain.ErrorEnvelope(fmt.Sprintf("Internal error: %v", rec)))
		}
	}()

	cred, err := neg.Run(ctx, init)
	if err != nil {
		log.Info("negotiation ended without credential", "kind", domain.KindOf(err).String(), "error", err)
		return
	}
	log.Info("credential issued", "filename", cred.Filename, "account_id", cred.AccountID)
}

// readLoop раздаёт input_response. Лишние init и незапрошенные ответы отбрасываются.
func (h *Handler) readLoop(wsConn *websocket.Conn, neg Negotiation, log *slog.Logger) {
	limiter := rate.NewLimiter(rate.Limit(h.opts.InboundRate), h.opts.InboundBurst)

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				log.Debug("websocket read error", "error", err)
			}
			return
		}

		if !limiter.Allow() {
			log.Warn("inbound message dropped by rate limit")
			continue
		}

		in, err := domain.DecodeInbound(data)
		if err != nil {
			log.Warn("malformed inbound message", "error", err)
			continue
		}

		switch in.Type {
		case domain.TypeInputResponse:
			value, err := in.InputValue()
			if err != nil {
				log.Warn("malformed input_response", "error", err)
				continue
			}
			if !neg.Deliver(value) {
				log.Warn("unsolicited input_response dropped")
			}
		case domain.TypeInit:
			log.Warn("repeated init ignored")
		default:
			log.Warn("unknown inbound message", "type", in.Type)
		}
	}
}
