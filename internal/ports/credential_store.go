package ports

import (
	"context"
	"io"
	"time"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

type CredentialStore interface {
	// Persist пишет строку сессии и возвращает имя файла
	Persist(ctx context.Context, accountID int64, issuedAt time.Time, session string) (string, error)
	// Open отдаёт сохранённый файл; domain.ErrNotFound если его нет
	Open(filename string) (io.ReadSeekCloser, time.Time, error)
}

// CredentialIndex - список выданных сессий без секретов.
type CredentialIndex interface {
	Record(ctx context.Context, ref domain.CredentialRef) error
	Recent(ctx context.Context, limit int) ([]domain.CredentialRef, error)
}

// CredentialMirror - дополнительная копия файла (например, S3).
type CredentialMirror interface {
	Put(ctx context.Context, filename string, content []byte) error
}
