package ports

import (
	"context"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

// EnvelopeSink - исходящая сторона канала. Send не должен блокироваться после закрытия канала.
type EnvelopeSink interface {
	Send(ctx context.Context, env domain.Envelope) error
}

// QRRenderer рисует PNG по строке.
type QRRenderer interface {
	Render(content string) ([]byte, error)
}
