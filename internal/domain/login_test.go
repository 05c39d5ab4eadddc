package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLoginConfig(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr string
		check   func(t *testing.T, cfg LoginConfig)
	}{
		{
			name:    "qr without proxy",
			payload: `{"api_id": 12345, "api_hash": "abc", "login_method": "qr"}`,
			check: func(t *testing.T, cfg LoginConfig) {
				if cfg.APIID != 12345 || cfg.APIHash != "abc" || cfg.Method != MethodQR || cfg.Proxy != nil {
					t.Errorf("unexpected config %+v", cfg)
				}
			},
		},
		{
			name:    "string api id and socks5 proxy",
			payload: `{"api_id": "777", "api_hash": "h", "login_method": "phone", "proxy_enabled": true, "proxy_type": "socks5", "proxy_ip": "127.0.0.1", "proxy_port": "7890"}`,
			check: func(t *testing.T, cfg LoginConfig) {
				if cfg.APIID != 777 || cfg.Method != MethodPhone {
					t.Errorf("unexpected config %+v", cfg)
				}
				if cfg.Proxy == nil || cfg.Proxy.Port != 7890 || cfg.Proxy.Server != "127.0.0.1" || cfg.Proxy.Kind != ProxySocks5 {
					t.Errorf("unexpected proxy %+v", cfg.Proxy)
				}
			},
		},
		{
			name:    "disabled proxy ignores garbage port",
			payload: `{"api_id": 1, "api_hash": "h", "login_method": "qr", "proxy_enabled": false, "proxy_port": "abc"}`,
			check: func(t *testing.T, cfg LoginConfig) {
				if cfg.Proxy != nil {
					t.Errorf("proxy must be nil, got %+v", cfg.Proxy)
				}
			},
		},
		{name: "missing api id", payload: `{"api_hash": "h", "login_method": "qr"}`, wantErr: "api_id is required"},
		{name: "zero api id", payload: `{"api_id": 0, "api_hash": "h", "login_method": "qr"}`, wantErr: "positive"},
		{name: "negative api id", payload: `{"api_id": -5, "api_hash": "h", "login_method": "qr"}`, wantErr: "positive"},
		{name: "negative api id wrapping to int32", payload: `{"api_id": -4294967295, "api_hash": "h", "login_method": "qr"}`, wantErr: "positive"},
		{name: "api id above int32", payload: `{"api_id": "4294967297", "api_hash": "h", "login_method": "qr"}`, wantErr: "positive"},
		{name: "missing hash", payload: `{"api_id": 1, "login_method": "qr"}`, wantErr: "api_hash is required"},
		{name: "unknown method", payload: `{"api_id": 1, "api_hash": "h", "login_method": "sms"}`, wantErr: "login_method"},
		{
			name:    "non numeric proxy port",
			payload: `{"api_id": 1, "api_hash": "h", "login_method": "qr", "proxy_enabled": true, "proxy_ip": "10.0.0.1", "proxy_port": "80a"}`,
			wantErr: "proxy_port must be an integer",
		},
		{
			name:    "proxy port out of range",
			payload: `{"api_id": 1, "api_hash": "h", "login_method": "qr", "proxy_enabled": true, "proxy_ip": "10.0.0.1", "proxy_port": 70000}`,
			wantErr: "1..65535",
		},
		{
			name:    "proxy without host",
			payload: `{"api_id": 1, "api_hash": "h", "login_method": "qr", "proxy_enabled": true, "proxy_port": 1080}`,
			wantErr: "proxy_ip",
		},
		{name: "empty payload", payload: ``, wantErr: "empty"},
		{name: "not an object", payload: `[1,2]`, wantErr: "decode init payload"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseLoginConfig(json.RawMessage(tc.payload))
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tc.wantErr)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("error %q does not contain %q", err, tc.wantErr)
				}
				if KindOf(err) != KindConfig {
					t.Errorf("kind = %s, want config", KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestWrapKeepsFirstKind(t *testing.T) {
	inner := Wrap(KindAuthRejected, "sign in", ErrInvalidCode)
	outer := Wrap(KindConnect, "phone login", inner)

	if KindOf(outer) != KindAuthRejected {
		t.Errorf("kind = %s, want auth_rejected", KindOf(outer))
	}
	if !errors.Is(outer, ErrInvalidCode) {
		t.Error("wrapped error must match ErrInvalidCode")
	}
	if Wrap(KindConnect, "x", nil) != nil {
		t.Error("Wrap(nil) must be nil")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("plain errors are internal")
	}
}
