package domain

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует причину, по которой переговоры прервались.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindConfig
	KindConnect
	KindAuthRejected
	KindTimeout
	KindAbandoned
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnect:
		return "connect"
	case KindAuthRejected:
		return "auth_rejected"
	case KindTimeout:
		return "timeout"
	case KindAbandoned:
		return "abandoned"
	default:
		return "internal"
	}
}

var (
	ErrTwoFactorRequired = errors.New("two-step verification password required")
	ErrInvalidCode       = errors.New("invalid code")
	ErrInvalidPassword   = errors.New("invalid two-step verification password")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrInputPending      = errors.New("input request already pending")
	ErrNotFound          = errors.New("not found")
)

// NegotiationError несёт вид ошибки и шаг, на котором она случилась.
type NegotiationError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *NegotiationError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Wrap оборачивает err, сохраняя вид уже классифицированной ошибки.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ne *NegotiationError
	if errors.As(err, &ne) {
		return err
	}
	return &NegotiationError{Kind: kind, Op: op, Err: err}
}

// ConfigErrorf формирует ошибку конфигурации входа.
func ConfigErrorf(format string, args ...any) error {
	return &NegotiationError{Kind: KindConfig, Op: "config", Err: fmt.Errorf(format, args...)}
}

// KindOf возвращает вид ошибки; неклассифицированные считаются внутренними.
func KindOf(err error) ErrorKind {
	var ne *NegotiationError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return KindInternal
}
