package useCases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/larriantoniy/tg_session_web/internal/ports"
)

var ErrShuttingDown = errors.New("runner is shutting down")

// Runner создаёт переговоры под каждый канал и следит за активными,
// чтобы при остановке отменить их и дождаться освобождения клиентов.
type Runner struct {
	deps Deps
	log  *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(deps Deps, log *slog.Logger) *Runner {
	return &Runner{
		deps:   deps.withDefaults(),
		log:    log,
		active: make(map[string]context.CancelFunc),
	}
}

// Open возвращает новый Negotiator, привязанный к sink канала.
func (r *Runner) Open(sink ports.EnvelopeSink) *Negotiator {
	id := uuid.NewString()
	n := newNegotiator(id, r.deps, sink, r.log.With("negotiation", id))
	n.runner = r
	return n
}

// Active - число идущих переговоров.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Runner) track(ctx context.Context, n *Negotiator) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ctx, nil, ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(ctx)
	r.active[n.id] = cancel
	r.wg.Add(1)

	started := time.Now()
	r.log.Info("negotiation started", "negotiation", n.id, "active", len(r.active))

	return ctx, func() {
		cancel()

		r.mu.Lock()
		delete(r.active, n.id)
		left := len(r.active)
		r.mu.Unlock()

		r.log.Info("negotiation finished",
			"negotiation", n.id,
			"state", n.State().String(),
			"duration", time.Since(started).String(),
			"active", left,
		)
		r.wg.Done()
	}, nil
}

// Shutdown отменяет все переговоры и ждёт, пока они отпустят клиентов.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.active {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
