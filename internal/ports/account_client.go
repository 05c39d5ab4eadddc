package ports

import (
	"context"
	"log/slog"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

// AccountClient - клиент удалённого аккаунт-сервиса (Telegram).
// Реализуется адаптером TDLib, в тестах - фейком.
type AccountClient interface {
	// Connect поднимает соединение и узнаёт состояние авторизации
	Connect(ctx context.Context) error
	IsAuthorized(ctx context.Context) (bool, error)

	// BeginQRLogin возвращает одноразовую ссылку для QR
	BeginQRLogin(ctx context.Context) (string, error)
	// WaitQRConfirmation ждёт скана; дедлайн задаётся через ctx.
	// domain.ErrTwoFactorRequired - если после скана нужен пароль.
	WaitQRConfirmation(ctx context.Context) error

	RequestCode(ctx context.Context, phone string) error
	// SignIn: domain.ErrInvalidCode или domain.ErrTwoFactorRequired
	SignIn(ctx context.Context, phone, code string) error
	SignInPassword(ctx context.Context, password string) error

	// SaveSession возвращает переносимую строку сессии
	SaveSession(ctx context.Context) (string, error)
	Identity(ctx context.Context) (domain.Identity, error)

	// Disconnect освобождает клиента; вызывается ровно один раз на любом пути выхода
	Disconnect() error
}

// AccountClientFactory создаёт нового клиента под одни переговоры.
type AccountClientFactory func(cfg domain.LoginConfig, log *slog.Logger) (AccountClient, error)
