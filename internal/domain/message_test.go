package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeWireShape(t *testing.T) {
	cases := []struct {
		env  Envelope
		want string
	}{
		{LogEnvelope("hi", LevelWarning), `{"type":"log","text":"hi","level":"warning"}`},
		{QRCodeEnvelope([]byte{0x89, 'P', 'N', 'G'}), `{"type":"qr_code","data":"iVBORw=="}`},
		{QRTimeoutEnvelope(), `{"type":"qr_timeout"}`},
		{InputRequiredEnvelope(InputRequest{Prompt: "Password:", Kind: FieldPassword}), `{"type":"input_required","prompt":"Password:","field_type":"password"}`},
		{SessionGeneratedEnvelope("tdlib:xyz", "session_1_2.txt"), `{"type":"session_generated","session":"tdlib:xyz","filename":"session_1_2.txt"}`},
		{ErrorEnvelope("boom"), `{"type":"error","text":"boom"}`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.env)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tc.want {
			t.Errorf("got %s, want %s", b, tc.want)
		}
	}
}

func TestEnvelopeIsTerminal(t *testing.T) {
	if !LogEnvelope("x", LevelError).IsTerminal() {
		t.Error("error-level log is terminal")
	}
	if LogEnvelope("x", LevelWarning).IsTerminal() {
		t.Error("warning log is not terminal")
	}
	if InputRequiredEnvelope(InputRequest{}).IsTerminal() {
		t.Error("input_required is not terminal")
	}
	if !QRTimeoutEnvelope().IsTerminal() || !SessionGeneratedEnvelope("s", "f").IsTerminal() {
		t.Error("qr_timeout and session_generated are terminal")
	}
}

func TestInboundInputValue(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"input_response","data":"+15550001111"}`))
	if err != nil {
		t.Fatal(err)
	}
	v, err := in.InputValue()
	if err != nil || v != "+15550001111" {
		t.Fatalf("got %q, %v", v, err)
	}

	in, _ = DecodeInbound([]byte(`{"type":"input_response","data":12345}`))
	if v, err := in.InputValue(); err != nil || v != "12345" {
		t.Fatalf("numeric code: got %q, %v", v, err)
	}

	in, _ = DecodeInbound([]byte(`{"type":"init","data":{}}`))
	if _, err := in.InputValue(); err == nil {
		t.Error("init is not an input response")
	}

	if _, err := DecodeInbound([]byte(`{"data":"x"}`)); err == nil {
		t.Error("missing type must fail")
	}
}

func TestCredentialFilename(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	name := CredentialFilename(42, issued)
	if name != "session_42_1700000000.txt" {
		t.Fatalf("name = %s", name)
	}
	ref, ok := ParseCredentialFilename(name)
	if !ok || ref.AccountID != 42 || !ref.IssuedAt.Equal(issued) {
		t.Fatalf("parse = %+v, %v", ref, ok)
	}
	for _, bad := range []string{"../etc/passwd", "session_1_2.txt.bak", "session_a_2.txt", "x/session_1_2.txt"} {
		if _, ok := ParseCredentialFilename(bad); ok {
			t.Errorf("%q must not parse", bad)
		}
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StateIdle, StateConnecting) {
		t.Error("idle -> connecting")
	}
	if !CanTransition(StateAwaitingAuthDecision, StateFinalizing) {
		t.Error("already authorized skips to finalizing")
	}
	if CanTransition(StateIdle, StateFinalizing) {
		t.Error("idle cannot jump to finalizing")
	}
	if !CanTransition(StateQRHandshake, StateAborted) {
		t.Error("aborted reachable from non-terminal")
	}
	if CanTransition(StateDone, StateAborted) || CanTransition(StateAborted, StateIdle) {
		t.Error("terminal states are absorbing")
	}
}
