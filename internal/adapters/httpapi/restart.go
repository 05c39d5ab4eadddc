package httpapi

import (
	"log/slog"
	"sync"
	"time"
)

// Restarter останавливает процесс по запросу. Поднимает его обратно супервизор (docker restart policy).
type Restarter struct {
	grace time.Duration
	stop  func()
	log   *slog.Logger

	once sync.Once
}

// NewRestarter: stop вызывается через grace после первого Restart, ответ клиенту успевает уйти.
func NewRestarter(grace time.Duration, stop func(), log *slog.Logger) *Restarter {
	if grace <= 0 {
		grace = time.Second
	}
	return &Restarter{grace: grace, stop: stop, log: log}
}

// Restart не блокируется; повторные вызовы ничего не делают.
func (r *Restarter) Restart() {
	r.once.Do(func() {
		r.log.Info("restart scheduled", "grace", r.grace.String())
		time.AfterFunc(r.grace, r.stop)
	})
}
