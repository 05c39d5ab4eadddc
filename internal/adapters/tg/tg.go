package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zelenin/go-tdlib/client"

	"github.com/larriantoniy/tg_session_web/internal/domain"
	"github.com/larriantoniy/tg_session_web/internal/ports"
)

// Options - общие для всех клиентов настройки TDLib.
type Options struct {
	WorkDir       string
	Verbosity     int32
	DeviceModel   string
	SystemVersion string
	AppVersion    string
	LangCode      string
	// ReleaseTimeout - сколько ждать остановки TDLib перед удалением рабочего каталога
	ReleaseTimeout time.Duration
}

var verbosityOnce sync.Once

// NewFactory возвращает фабрику клиентов: по одному TDLib-инстансу на переговоры.
func NewFactory(opts Options, log *slog.Logger) ports.AccountClientFactory {
	verbosityOnce.Do(func() {
		if _, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
			NewVerbosityLevel: opts.Verbosity,
		}); err != nil {
			log.Error("TDLib SetLogVerbosityLevel", "error", err)
		}
	})

	return func(cfg domain.LoginConfig, l *slog.Logger) (ports.AccountClient, error) {
		c, err := NewAccountClient(cfg, opts, l)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// AccountClient реализует ports.AccountClient поверх TDLib.
type AccountClient struct {
	log     *slog.Logger
	proxy   *domain.ProxyConfig
	workDir string
	dbDir   string
	opts    []client.Option
	bridge  *authBridge
	timeout time.Duration

	mu         sync.Mutex
	td         *client.Client
	started    bool
	authorized bool
	runDone    chan struct{}
	released   bool
}

func NewAccountClient(cfg domain.LoginConfig, opts Options, log *slog.Logger) (*AccountClient, error) {
	proxyOpt, err := proxyOption(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Join(opts.WorkDir, uuid.NewString())
	dbDir := filepath.Join(workDir, "database")
	filesDir := filepath.Join(workDir, "files")

	if err := os.MkdirAll(dbDir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("mkdir files dir: %w", err)
	}

	var clientOpts []client.Option
	if proxyOpt != nil {
		clientOpts = append(clientOpts, proxyOpt)
	}

	timeout := opts.ReleaseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	params := tdParams(cfg.APIID, cfg.APIHash, dbDir, filesDir, opts)
	return &AccountClient{
		log:     log.With("tdlib_dir", workDir),
		proxy:   cfg.Proxy,
		workDir: workDir,
		dbDir:   dbDir,
		opts:    clientOpts,
		bridge:  newAuthBridge(params, log),
		timeout: timeout,
		runDone: make(chan struct{}),
	}, nil
}

func (c *AccountClient) Connect(ctx context.Context) error {
	if err := checkProxy(ctx, c.log, c.proxy); err != nil {
		return err
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("tdlib: client already connected")
	}
	c.started = true
	c.mu.Unlock()

	go c.run()

	ev, err := c.bridge.await(ctx, func(ev authEvent) bool {
		return ev.is(client.TypeAuthorizationStateReady) ||
			ev.is(client.TypeAuthorizationStateWaitPhoneNumber) ||
			ev.is(client.TypeAuthorizationStateWaitCode) ||
			ev.is(client.TypeAuthorizationStateWaitPassword)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.authorized = ev.is(client.TypeAuthorizationStateReady)
	c.mu.Unlock()

	c.log.Info("TDLib client connected", "state", ev.state.AuthorizationStateType())
	return nil
}

// run крутит NewClient: он возвращается только после Ready или при ошибке.
func (c *AccountClient) run() {
	defer close(c.runDone)

	td, err := client.NewClient(c.bridge, c.opts...)
	if err != nil {
		c.log.Warn("TDLib NewClient finished with error", "error", err)
		c.bridge.fail(classifyError(err))
		return
	}

	c.mu.Lock()
	c.td = td
	c.mu.Unlock()

	c.bridge.publish(authEvent{state: &client.AuthorizationStateReady{}})
}

func (c *AccountClient) IsAuthorized(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized, nil
}

func (c *AccountClient) BeginQRLogin(ctx context.Context) (string, error) {
	if err := c.bridge.do(ctx, actionQR, ""); err != nil {
		return "", err
	}

	ev, err := c.bridge.await(ctx, func(ev authEvent) bool {
		return ev.is(client.TypeAuthorizationStateWaitOtherDeviceConfirmation)
	})
	if err != nil {
		return "", err
	}

	confirm, ok := ev.state.(*client.AuthorizationStateWaitOtherDeviceConfirmation)
	if !ok || confirm.Link == "" {
		return "", errors.New("tdlib: empty qr login link")
	}
	return confirm.Link, nil
}

func (c *AccountClient) WaitQRConfirmation(ctx context.Context) error {
	ev, err := c.bridge.await(ctx, func(ev authEvent) bool {
		return ev.is(client.TypeAuthorizationStateReady) ||
			ev.is(client.TypeAuthorizationStateWaitPassword)
	})
	if err != nil {
		return err
	}
	if ev.is(client.TypeAuthorizationStateWaitPassword) {
		return domain.ErrTwoFactorRequired
	}
	return nil
}

func (c *AccountClient) RequestCode(ctx context.Context, phone string) error {
	if err := c.bridge.do(ctx, actionPhone, phone); err != nil {
		return err
	}
	_, err := c.bridge.await(ctx, func(ev authEvent) bool {
		return ev.is(client.TypeAuthorizationStateWaitCode) ||
			ev.is(client.TypeAuthorizationStateWaitPassword) ||
			ev.is(client.TypeAuthorizationStateReady)
	})
	return err
}

func (c *AccountClient) SignIn(ctx context.Context, phone, code string) error {
	if err := c.bridge.do(ctx, actionCode, code); err != nil {
		return err
	}
	return c.settle(ctx, client.TypeAuthorizationStateWaitCode)
}

func (c *AccountClient) SignInPassword(ctx context.Context, password string) error {
	if err := c.bridge.do(ctx, actionPassword, password); err != nil {
		return err
	}
	return c.settle(ctx, client.TypeAuthorizationStateWaitPassword)
}

// settle ждёт, пока состояние уйдёт с шага from: Ready - успех, WaitPassword - нужен пароль.
func (c *AccountClient) settle(ctx context.Context, from string) error {
	ev, err := c.bridge.await(ctx, func(ev authEvent) bool {
		return ev.state != nil && ev.state.AuthorizationStateType() != from &&
			(ev.is(client.TypeAuthorizationStateReady) || ev.is(client.TypeAuthorizationStateWaitPassword))
	})
	if err != nil {
		return err
	}
	if ev.is(client.TypeAuthorizationStateWaitPassword) {
		return domain.ErrTwoFactorRequired
	}
	return nil
}

func (c *AccountClient) ready(ctx context.Context) (*client.Client, error) {
	if _, err := c.bridge.await(ctx, func(ev authEvent) bool {
		return ev.is(client.TypeAuthorizationStateReady)
	}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.td == nil {
		return nil, errors.New("tdlib: client is not ready")
	}
	return c.td, nil
}

func (c *AccountClient) SaveSession(ctx context.Context) (string, error) {
	if _, err := c.ready(ctx); err != nil {
		return "", err
	}
	return exportSession(c.dbDir)
}

func (c *AccountClient) Identity(ctx context.Context) (domain.Identity, error) {
	td, err := c.ready(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	me, err := td.GetMe()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("GetMe failed: %w", err)
	}

	id := domain.Identity{
		ID:        me.Id,
		FirstName: strings.TrimSpace(me.FirstName + " " + me.LastName),
		Phone:     me.PhoneNumber,
	}
	if me.Usernames != nil && len(me.Usernames.ActiveUsernames) > 0 {
		id.Username = me.Usernames.ActiveUsernames[0]
	}
	return id, nil
}

// Disconnect останавливает TDLib и удаляет рабочий каталог клиента.
func (c *AccountClient) Disconnect() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	td, started := c.td, c.started
	c.mu.Unlock()

	c.bridge.close()
	if td != nil {
		td.Close()
	}

	if started {
		select {
		case <-c.runDone:
		case <-time.After(c.timeout):
			c.log.Warn("TDLib did not stop in time, keeping work dir")
			return fmt.Errorf("tdlib: shutdown timed out after %s", c.timeout)
		}
	}

	if err := os.RemoveAll(c.workDir); err != nil {
		return fmt.Errorf("remove tdlib dir: %w", err)
	}
	c.log.Debug("TDLib client released")
	return nil
}

// classifyError переводит ошибки TDLib в доменные.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	// TDLib оборачивается в client.Error
	var tdErr *client.Error
	if !errors.As(err, &tdErr) {
		return err
	}

	msg := strings.ToUpper(tdErr.Message)
	switch {
	case strings.Contains(msg, "PHONE_CODE_INVALID"),
		strings.Contains(msg, "PHONE_CODE_EMPTY"),
		strings.Contains(msg, "PHONE_CODE_EXPIRED"):
		return fmt.Errorf("%w: %s", domain.ErrInvalidCode, tdErr.Message)
	case strings.Contains(msg, "PASSWORD_HASH_INVALID"):
		return fmt.Errorf("%w: %s", domain.ErrInvalidPassword, tdErr.Message)
	case strings.Contains(msg, "PHONE_NUMBER_INVALID"),
		strings.Contains(msg, "PHONE_NUMBER_BANNED"),
		strings.Contains(msg, "PHONE_NUMBER_FLOOD"):
		return fmt.Errorf("%w: %s", domain.ErrInvalidPhone, tdErr.Message)
	case tdErr.Code == 429 || strings.Contains(msg, "TOO MANY REQUESTS"):
		return fmt.Errorf("tdlib: too many requests: %s", tdErr.Message)
	}
	return err
}
