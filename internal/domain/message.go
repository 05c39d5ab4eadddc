package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type EnvelopeType string

const (
	TypeInit             EnvelopeType = "init"
	TypeLog              EnvelopeType = "log"
	TypeQRCode           EnvelopeType = "qr_code"
	TypeQRTimeout        EnvelopeType = "qr_timeout"
	TypeInputRequired    EnvelopeType = "input_required"
	TypeInputResponse    EnvelopeType = "input_response"
	TypeSessionGenerated EnvelopeType = "session_generated"
	TypeError            EnvelopeType = "error"
)

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// FieldKind - как странице отрисовать поле ввода.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldPassword FieldKind = "password"
)

// InputRequest - ожидающий ответа запрос ввода.
type InputRequest struct {
	Prompt string
	Kind   FieldKind
}

// Envelope - исходящее сообщение сервер -> браузер.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Text      string       `json:"text,omitempty"`
	Level     LogLevel     `json:"level,omitempty"`
	Data      string       `json:"data,omitempty"`
	Prompt    string       `json:"prompt,omitempty"`
	FieldType FieldKind    `json:"field_type,omitempty"`
	Session   string       `json:"session,omitempty"`
	Filename  string       `json:"filename,omitempty"`
}

func LogEnvelope(text string, level LogLevel) Envelope {
	return Envelope{Type: TypeLog, Text: text, Level: level}
}

// QRCodeEnvelope кладёт PNG в base64.
func QRCodeEnvelope(png []byte) Envelope {
	return Envelope{Type: TypeQRCode, Data: base64.StdEncoding.EncodeToString(png)}
}

func QRTimeoutEnvelope() Envelope {
	return Envelope{Type: TypeQRTimeout}
}

func InputRequiredEnvelope(req InputRequest) Envelope {
	return Envelope{Type: TypeInputRequired, Prompt: req.Prompt, FieldType: req.Kind}
}

func SessionGeneratedEnvelope(session, filename string) Envelope {
	return Envelope{Type: TypeSessionGenerated, Session: session, Filename: filename}
}

func ErrorEnvelope(text string) Envelope {
	return Envelope{Type: TypeError, Text: text}
}

// IsTerminal: после такого сообщения переговоры больше ничего не шлют.
func (e Envelope) IsTerminal() bool {
	switch e.Type {
	case TypeSessionGenerated, TypeQRTimeout, TypeError:
		return true
	case TypeLog:
		return e.Level == LevelError
	default:
		return false
	}
}

// Inbound - сообщение браузер -> сервер. Data разбирается по типу.
type Inbound struct {
	Type EnvelopeType    `json:"type"`
	Data json.RawMessage `json:"data"`
}

func DecodeInbound(b []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return Inbound{}, fmt.Errorf("decode envelope: %w", err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("decode envelope: missing type")
	}
	return in, nil
}

// InputValue достаёт ответ из input_response. Число тоже принимается - коды иногда приходят без кавычек.
func (in Inbound) InputValue() (string, error) {
	if in.Type != TypeInputResponse {
		return "", fmt.Errorf("envelope %q is not an input response", in.Type)
	}
	raw := strings.TrimSpace(string(in.Data))
	if raw == "" || raw == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(in.Data, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(in.Data, &n); err != nil {
		return "", fmt.Errorf("input response data must be a string: %w", err)
	}
	return n.String(), nil
}
