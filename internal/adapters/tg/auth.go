package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zelenin/go-tdlib/client"
)

var errBridgeClosed = errors.New("tdlib: authorization abandoned")

type actionKind int

const (
	actionPhone actionKind = iota
	actionQR
	actionCode
	actionPassword
)

func (k actionKind) String() string {
	switch k {
	case actionPhone:
		return "phone"
	case actionQR:
		return "qr"
	case actionCode:
		return "code"
	default:
		return "password"
	}
}

// authAction - шаг авторизации, который исполняется внутри цикла TDLib.
type authAction struct {
	kind   actionKind
	value  string
	result chan error
}

// authEvent - последнее известное состояние авторизации (или фатальная ошибка клиента).
type authEvent struct {
	state client.AuthorizationState
	err   error
	seq   uint64
}

func (e authEvent) is(stateType string) bool {
	return e.state != nil && e.state.AuthorizationStateType() == stateType
}

// authBridge реализует client.AuthorizationStateHandler.
// NewClient крутит цикл авторизации и блокируется до Ready; мост паркует этот цикл
// на каждом шаге, требующем ввода, и исполняет действия, пришедшие от переговоров.
type authBridge struct {
	params *client.SetTdlibParametersRequest
	log    *slog.Logger
	poll   time.Duration

	actions chan authAction
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	current authEvent
	changed chan struct{}
}

func newAuthBridge(params *client.SetTdlibParametersRequest, log *slog.Logger) *authBridge {
	return &authBridge{
		params:  params,
		log:     log,
		poll:    500 * time.Millisecond,
		actions: make(chan authAction),
		done:    make(chan struct{}),
		changed: make(chan struct{}),
	}
}

func (b *authBridge) Handle(c *client.Client, state client.AuthorizationState) error {
	switch state.AuthorizationStateType() {
	case client.TypeAuthorizationStateWaitTdlibParameters:
		_, err := c.SetTdlibParameters(b.params)
		return err

	case client.TypeAuthorizationStateWaitPhoneNumber,
		client.TypeAuthorizationStateWaitCode,
		client.TypeAuthorizationStateWaitPassword:
		b.publish(authEvent{state: state})
		return b.serve(c, state)

	case client.TypeAuthorizationStateWaitOtherDeviceConfirmation:
		b.publish(authEvent{state: state})
		return b.idle()

	case client.TypeAuthorizationStateReady:
		// Ready публикует AccountClient, когда NewClient вернёт клиента
		return nil

	case client.TypeAuthorizationStateLoggingOut,
		client.TypeAuthorizationStateClosing,
		client.TypeAuthorizationStateClosed:
		// клиент уже закрывается, Close повторно не нужен
		b.log.Debug("tdlib authorization state", "state", state.AuthorizationStateType())
		b.pause()
		return nil

	default:
		// email, регистрация и прочее: через веб-страницу такой вход не провести
		err := client.NotSupportedAuthorizationState(state)
		b.log.Warn("tdlib authorization state not supported", "state", state.AuthorizationStateType())
		b.fail(err)
		return err
	}
}

func (b *authBridge) Close() {}

// serve ждёт одно действие и исполняет его. Ошибку действия получает вызывающий,
// а цикл TDLib продолжает работу: неверный код не должен убивать клиента.
func (b *authBridge) serve(c *client.Client, state client.AuthorizationState) error {
	select {
	case <-b.done:
		return errBridgeClosed
	case act := <-b.actions:
		act.result <- b.apply(c, state, act)
		return nil
	}
}

func (b *authBridge) apply(c *client.Client, state client.AuthorizationState, act authAction) error {
	stateType := state.AuthorizationStateType()
	var err error

	switch {
	case act.kind == actionPhone && stateType == client.TypeAuthorizationStateWaitPhoneNumber:
		_, err = c.SetAuthenticationPhoneNumber(&client.SetAuthenticationPhoneNumberRequest{
			PhoneNumber: act.value,
		})
	case act.kind == actionQR && stateType == client.TypeAuthorizationStateWaitPhoneNumber:
		_, err = c.RequestQrCodeAuthentication(&client.RequestQrCodeAuthenticationRequest{})
	case act.kind == actionCode && stateType == client.TypeAuthorizationStateWaitCode:
		_, err = c.CheckAuthenticationCode(&client.CheckAuthenticationCodeRequest{
			Code: act.value,
		})
	case act.kind == actionPassword && stateType == client.TypeAuthorizationStateWaitPassword:
		_, err = c.CheckAuthenticationPassword(&client.CheckAuthenticationPasswordRequest{
			Password: act.value,
		})
	default:
		return fmt.Errorf("tdlib: %s step is not allowed in state %s", act.kind, stateType)
	}

	if err != nil {
		b.log.Warn("tdlib authorization step failed", "step", act.kind.String(), "error", err)
	}
	return classifyError(err)
}

// idle - пауза между опросами состояния, пока ждём действий от второго устройства.
// После close возвращает ошибку: только так Authorize закрывает клиента и NewClient возвращается.
func (b *authBridge) idle() error {
	t := time.NewTimer(b.poll)
	defer t.Stop()

	select {
	case <-b.done:
		return errBridgeClosed
	case <-t.C:
	}
	return nil
}

// pause - пауза между опросами, пока TDLib сам доходит до Closed.
func (b *authBridge) pause() {
	t := time.NewTimer(b.poll)
	defer t.Stop()

	select {
	case <-b.done:
		t.Reset(b.poll / 10)
		<-t.C
	case <-t.C:
	}
}

// do отправляет действие в цикл авторизации и ждёт результата.
func (b *authBridge) do(ctx context.Context, kind actionKind, value string) error {
	act := authAction{kind: kind, value: value, result: make(chan error, 1)}

	select {
	case b.actions <- act:
	case <-b.done:
		return errBridgeClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-act.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *authBridge) publish(ev authEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev.seq = b.current.seq + 1
	b.current = ev
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *authBridge) fail(err error) {
	b.publish(authEvent{err: err})
}

func (b *authBridge) snapshot() authEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// await ждёт события, удовлетворяющего match. Ошибка клиента прерывает ожидание всегда.
func (b *authBridge) await(ctx context.Context, match func(authEvent) bool) (authEvent, error) {
	for {
		b.mu.Lock()
		ev, changed := b.current, b.changed
		b.mu.Unlock()

		if ev.err != nil {
			return ev, ev.err
		}
		if match(ev) {
			return ev, nil
		}

		select {
		case <-changed:
		case <-b.done:
			return ev, errBridgeClosed
		case <-ctx.Done():
			return ev, ctx.Err()
		}
	}
}

func (b *authBridge) close() {
	b.once.Do(func() { close(b.done) })
}
