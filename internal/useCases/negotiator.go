package useCases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/larriantoniy/tg_session_web/internal/domain"
	"github.com/larriantoniy/tg_session_web/internal/ports"
)

const (
	DefaultQRTimeout      = 60 * time.Second
	DefaultConnectTimeout = 30 * time.Second
)

var errTerminated = errors.New("negotiation already reported its outcome")

// Deps - общие для всех переговоров зависимости.
type Deps struct {
	Clients ports.AccountClientFactory
	Store   ports.CredentialStore
	Index   ports.CredentialIndex // может быть nil
	QR      ports.QRRenderer

	QRTimeout      time.Duration
	ConnectTimeout time.Duration
	Now            func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.QRTimeout <= 0 {
		d.QRTimeout = DefaultQRTimeout
	}
	if d.ConnectTimeout <= 0 {
		d.ConnectTimeout = DefaultConnectTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Negotiator ведёт одну попытку входа (QR или телефон) от init до Done/Aborted.
// Один экземпляр на один канал.
type Negotiator struct {
	id     string
	deps   Deps
	sink   ports.EnvelopeSink
	log    *slog.Logger
	runner *Runner

	input inputSlot

	mu         sync.Mutex
	state      domain.State
	trace      []domain.State
	pending    *domain.InputRequest
	terminated bool
}

func NewNegotiator(deps Deps, sink ports.EnvelopeSink, log *slog.Logger) *Negotiator {
	return newNegotiator("", deps, sink, log)
}

func newNegotiator(id string, deps Deps, sink ports.EnvelopeSink, log *slog.Logger) *Negotiator {
	return &Negotiator{
		id:    id,
		deps:  deps.withDefaults(),
		sink:  sink,
		log:   log,
		state: domain.StateIdle,
		trace: []domain.State{domain.StateIdle},
	}
}

func (n *Negotiator) ID() string { return n.id }

func (n *Negotiator) State() domain.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Trace - все пройденные состояния по порядку.
func (n *Negotiator) Trace() []domain.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.State(nil), n.trace...)
}

// Pending - текущий запрос ввода, если есть.
func (n *Negotiator) Pending() *domain.InputRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending == nil {
		return nil
	}
	p := *n.pending
	return &p
}

// Deliver передаёт ответ input_response ждущему запросу. Непрошенные ответы отбрасываются.
func (n *Negotiator) Deliver(value string) bool {
	return n.input.deliver(value)
}

// Run проводит переговоры целиком. Отмена ctx означает, что канал закрыт:
// всё освобождается и больше ничего не отправляется.
func (n *Negotiator) Run(ctx context.Context, init json.RawMessage) (cred *domain.Credential, err error) {
	if n.runner != nil {
		var done func()
		ctx, done, err = n.runner.track(ctx, n)
		if err != nil {
			// клиент должен узнать, почему канал закрывается
			n.abort(ctx, err)
			return nil, err
		}
		defer done()
	}

	if err := n.transition(domain.StateConnecting); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			n.log.Error("negotiation panicked", "panic", r)
			cred = nil
			err = domain.Wrap(domain.KindInternal, "negotiation", fmt.Errorf("panic: %v", r))
			n.abort(ctx, err)
		}
	}()

	cfg, err := domain.ParseLoginConfig(init)
	if err != nil {
		n.abort(ctx, err)
		return nil, err
	}
	n.log = n.log.With("method", cfg.Method)

	if cfg.Proxy != nil {
		n.say(ctx, "Using proxy: "+cfg.Proxy.String(), domain.LevelInfo)
	} else {
		n.say(ctx, "Direct connection (no proxy)", domain.LevelInfo)
	}

	cli, err := n.deps.Clients(cfg, n.log)
	if err != nil {
		err = domain.Wrap(domain.KindConnect, "create client", err)
		n.abort(ctx, err)
		return nil, err
	}
	defer n.release(cli)

	cred, err = n.negotiate(ctx, cli, cfg)
	if err != nil {
		n.abort(ctx, err)
		return nil, err
	}
	return cred, nil
}

func (n *Negotiator) negotiate(ctx context.Context, cli ports.AccountClient, cfg domain.LoginConfig) (*domain.Credential, error) {
	n.say(ctx, "Connecting to Telegram...", domain.LevelInfo)

	connectCtx, cancel := context.WithTimeout(ctx, n.deps.ConnectTimeout)
	err := cli.Connect(connectCtx)
	cancel()
	if err != nil {
		return nil, n.classify(ctx, domain.KindConnect, "connect", err)
	}

	if err := n.transition(domain.StateAwaitingAuthDecision); err != nil {
		return nil, err
	}

	authorized, err := cli.IsAuthorized(ctx)
	if err != nil {
		return nil, n.classify(ctx, domain.KindConnect, "check authorization", err)
	}

	if authorized {
		n.say(ctx, "Account is already authorized", domain.LevelInfo)
	} else {
		switch cfg.Method {
		case domain.MethodQR:
			err = n.qrHandshake(ctx, cli)
		case domain.MethodPhone:
			err = n.phoneHandshake(ctx, cli)
		default:
			err = domain.ConfigErrorf("unsupported login method %q", cfg.Method)
		}
		if err != nil {
			return nil, err
		}
	}

	return n.finalize(ctx, cli)
}

func (n *Negotiator) qrHandshake(ctx context.Context, cli ports.AccountClient) error {
	if err := n.transition(domain.StateQRHandshake); err != nil {
		return err
	}

	link, err := cli.BeginQRLogin(ctx)
	if err != nil {
		return n.classify(ctx, domain.KindConnect, "request qr login", err)
	}

	n.say(ctx, "Generating QR code...", domain.LevelInfo)
	png, err := n.deps.QR.Render(link)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "render qr", err)
	}
	if err := n.emit(ctx, domain.QRCodeEnvelope(png)); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, n.deps.QRTimeout)
	defer cancel()

	err = cli.WaitQRConfirmation(waitCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrTwoFactorRequired):
		return n.twoFactor(ctx, cli)
	case ctx.Err() != nil:
		return n.classify(ctx, domain.KindAbandoned, "wait for qr scan", err)
	case errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return &domain.NegotiationError{Kind: domain.KindTimeout, Op: "wait for qr scan", Err: err}
	default:
		return n.classify(ctx, domain.KindConnect, "wait for qr scan", err)
	}
}

func (n *Negotiator) phoneHandshake(ctx context.Context, cli ports.AccountClient) error {
	if err := n.transition(domain.StatePhoneHandshake); err != nil {
		return err
	}

	phone, err := n.requestInput(ctx, domain.InputRequest{
		Prompt: "Enter phone number (with country code, e.g. +1...):",
		Kind:   domain.FieldText,
	})
	if err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.Wrap(domain.KindAuthRejected, "phone login", errors.New("phone number is required"))
	}

	n.say(ctx, fmt.Sprintf("Sending code to %s ...", phone), domain.LevelInfo)
	if err := cli.RequestCode(ctx, phone); err != nil {
		return n.classify(ctx, domain.KindConnect, "request code", err)
	}

	code, err := n.requestInput(ctx, domain.InputRequest{
		Prompt: "Enter the code you received:",
		Kind:   domain.FieldText,
	})
	if err != nil {
		return err
	}

	err = cli.SignIn(ctx, phone, strings.TrimSpace(code))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrTwoFactorRequired):
		return n.twoFactor(ctx, cli)
	default:
		return n.classify(ctx, domain.KindConnect, "sign in", err)
	}
}

func (n *Negotiator) twoFactor(ctx context.Context, cli ports.AccountClient) error {
	if err := n.transition(domain.StateAwaitingTwoFactor); err != nil {
		return err
	}

	n.say(ctx, "Two-step verification password detected", domain.LevelWarning)
	password, err := n.requestInput(ctx, domain.InputRequest{
		Prompt: "Enter two-step verification password:",
		Kind:   domain.FieldPassword,
	})
	if err != nil {
		return err
	}

	if err := cli.SignInPassword(ctx, password); err != nil {
		return n.classify(ctx, domain.KindConnect, "check password", err)
	}
	return nil
}

func (n *Negotiator) finalize(ctx context.Context, cli ports.AccountClient) (*domain.Credential, error) {
	if err := n.transition(domain.StateFinalizing); err != nil {
		return nil, err
	}

	session, err := cli.SaveSession(ctx)
	if err != nil {
		return nil, n.classify(ctx, domain.KindConnect, "save session", err)
	}
	if session == "" {
		return nil, domain.Wrap(domain.KindInternal, "save session", errors.New("empty session string"))
	}

	me, err := cli.Identity(ctx)
	if err != nil {
		return nil, n.classify(ctx, domain.KindConnect, "get identity", err)
	}
	n.say(ctx, "Login successful! "+me.String(), domain.LevelSuccess)

	issuedAt := n.deps.Now()
	filename, err := n.deps.Store.Persist(ctx, me.ID, issuedAt, session)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "persist credential", err)
	}
	cred := &domain.Credential{
		AccountID: me.ID,
		IssuedAt:  issuedAt,
		Session:   session,
		Filename:  filename,
	}
	n.log.Info("credential persisted", "account_id", me.ID, "filename", filename)

	if n.deps.Index != nil {
		if err := n.deps.Index.Record(ctx, cred.Ref()); err != nil {
			n.log.Warn("credential index record failed", "filename", filename, "error", err)
		}
	}

	if err := n.emit(ctx, domain.SessionGeneratedEnvelope(session, filename)); err != nil {
		return nil, err
	}
	if err := n.transition(domain.StateDone); err != nil {
		return nil, err
	}
	return cred, nil
}

// requestInput шлёт input_required и ждёт ответа без таймаута - только до закрытия канала.
func (n *Negotiator) requestInput(ctx context.Context, req domain.InputRequest) (string, error) {
	slot, err := n.input.arm()
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, "request input", err)
	}
	defer n.input.disarm(slot)

	n.setPending(&req)
	defer n.setPending(nil)

	if err := n.emit(ctx, domain.InputRequiredEnvelope(req)); err != nil {
		return "", err
	}

	select {
	case v := <-slot:
		return v, nil
	case <-ctx.Done():
		return "", &domain.NegotiationError{Kind: domain.KindAbandoned, Op: "await input", Err: ctx.Err()}
	}
}

func (n *Negotiator) setPending(req *domain.InputRequest) {
	n.mu.Lock()
	n.pending = req
	n.mu.Unlock()
}

func (n *Negotiator) transition(to domain.State) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !domain.CanTransition(n.state, to) {
		return domain.Wrap(domain.KindInternal, "transition",
			fmt.Errorf("illegal transition %s -> %s", n.state, to))
	}
	n.log.Debug("state transition", "from", n.state.String(), "to", to.String())
	n.state = to
	n.trace = append(n.trace, to)
	return nil
}

// emit - единственная точка отправки. После терминального сообщения ничего не уходит.
func (n *Negotiator) emit(ctx context.Context, env domain.Envelope) error {
	n.mu.Lock()
	if n.terminated {
		n.mu.Unlock()
		return errTerminated
	}
	if env.IsTerminal() {
		n.terminated = true
	}
	n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &domain.NegotiationError{Kind: domain.KindAbandoned, Op: "send " + string(env.Type), Err: err}
	}
	if err := n.sink.Send(ctx, env); err != nil {
		return &domain.NegotiationError{Kind: domain.KindAbandoned, Op: "send " + string(env.Type), Err: err}
	}
	return nil
}

// say - строка лога в браузер; ошибка отправки всплывёт на следующем ожидании.
func (n *Negotiator) say(ctx context.Context, text string, level domain.LogLevel) {
	if err := n.emit(ctx, domain.LogEnvelope(text, level)); err != nil {
		n.log.Debug("log line not delivered", "text", text, "error", err)
	}
}

func (n *Negotiator) classify(ctx context.Context, kind domain.ErrorKind, op string, err error) error {
	if ctx.Err() != nil {
		return &domain.NegotiationError{Kind: domain.KindAbandoned, Op: op, Err: err}
	}
	if errors.Is(err, domain.ErrInvalidCode) ||
		errors.Is(err, domain.ErrInvalidPassword) ||
		errors.Is(err, domain.ErrInvalidPhone) {
		kind = domain.KindAuthRejected
	}
	return domain.Wrap(kind, op, err)
}

func (n *Negotiator) abort(ctx context.Context, err error) {
	n.mu.Lock()
	from := n.state
	if !from.Terminal() {
		n.state = domain.StateAborted
		n.trace = append(n.trace, domain.StateAborted)
	}
	n.mu.Unlock()

	kind := domain.KindOf(err)
	if ctx.Err() != nil || kind == domain.KindAbandoned {
		n.log.Info("negotiation abandoned", "state", from.String(), "error", err)
		return
	}
	n.log.Warn("negotiation aborted", "state", from.String(), "kind", kind.String(), "error", err)

	env := domain.LogEnvelope("Operation aborted: "+err.Error(), domain.LevelError)
	if kind == domain.KindTimeout {
		env = domain.QRTimeoutEnvelope()
	}
	if sendErr := n.emit(ctx, env); sendErr != nil {
		n.log.Debug("abort report not delivered", "error", sendErr)
	}
}

func (n *Negotiator) release(cli ports.AccountClient) {
	if err := cli.Disconnect(); err != nil {
		n.log.Warn("account client disconnect failed", "error", err)
		return
	}
	n.log.Debug("account client released")
}
