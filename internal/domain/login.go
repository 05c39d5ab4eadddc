package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type LoginMethod string

const (
	MethodQR    LoginMethod = "qr"
	MethodPhone LoginMethod = "phone"
)

type ProxyKind string

const (
	ProxySocks5 ProxyKind = "socks5"
	ProxySocks4 ProxyKind = "socks4"
	ProxyHTTP   ProxyKind = "http"
)

// ProxyConfig описывает прокси, через который клиент ходит в Telegram.
type ProxyConfig struct {
	Kind     ProxyKind
	Server   string
	Port     int32
	Username string
	Password string
}

func (p *ProxyConfig) String() string {
	return fmt.Sprintf("%s://%s:%d", strings.ToUpper(string(p.Kind)), p.Server, p.Port)
}

// LoginConfig неизменяем после старта переговоров.
type LoginConfig struct {
	APIID   int32
	APIHash string
	Proxy   *ProxyConfig
	Method  LoginMethod
}

// rawLoginConfig - то, что присылает страница в init.
type rawLoginConfig struct {
	APIID         json.RawMessage `json:"api_id"`
	APIHash       string          `json:"api_hash"`
	ProxyEnabled  bool            `json:"proxy_enabled"`
	ProxyType     string          `json:"proxy_type"`
	ProxyIP       string          `json:"proxy_ip"`
	ProxyPort     json.RawMessage `json:"proxy_port"`
	ProxyUsername string          `json:"proxy_username"`
	ProxyPassword string          `json:"proxy_password"`
	LoginMethod   string          `json:"login_method"`
}

// ParseLoginConfig разбирает payload init и валидирует его.
// Любая ошибка здесь имеет вид KindConfig.
func ParseLoginConfig(data json.RawMessage) (LoginConfig, error) {
	var raw rawLoginConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return LoginConfig{}, ConfigErrorf("init payload is empty")
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LoginConfig{}, ConfigErrorf("decode init payload: %w", err)
	}

	apiID, err := parseIntField("api_id", raw.APIID)
	if err != nil {
		return LoginConfig{}, err
	}
	if apiID < 1 || apiID > math.MaxInt32 {
		return LoginConfig{}, ConfigErrorf("api_id must be a positive integer, got %d", apiID)
	}

	cfg := LoginConfig{
		APIID:   int32(apiID),
		APIHash: strings.TrimSpace(raw.APIHash),
		Method:  LoginMethod(strings.ToLower(strings.TrimSpace(raw.LoginMethod))),
	}

	if raw.ProxyEnabled {
		kind := ProxyKind(strings.ToLower(strings.TrimSpace(raw.ProxyType)))
		if kind == "" {
			kind = ProxySocks5
		}
		port, err := parseIntField("proxy_port", raw.ProxyPort)
		if err != nil {
			return LoginConfig{}, err
		}
		if port < 1 || port > 65535 {
			return LoginConfig{}, ConfigErrorf("proxy_port must be in 1..65535, got %d", port)
		}
		cfg.Proxy = &ProxyConfig{
			Kind:     kind,
			Server:   strings.TrimSpace(raw.ProxyIP),
			Port:     int32(port),
			Username: raw.ProxyUsername,
			Password: raw.ProxyPassword,
		}
	}

	if err := cfg.Validate(); err != nil {
		return LoginConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет обязательные поля.
func (c LoginConfig) Validate() error {
	if c.APIID <= 0 {
		return ConfigErrorf("api_id must be a positive integer")
	}
	if c.APIHash == "" {
		return ConfigErrorf("api_hash is required")
	}
	switch c.Method {
	case MethodQR, MethodPhone:
	default:
		return ConfigErrorf("login_method must be %q or %q, got %q", MethodQR, MethodPhone, c.Method)
	}
	if p := c.Proxy; p != nil {
		switch p.Kind {
		case ProxySocks5, ProxySocks4, ProxyHTTP:
		default:
			return ConfigErrorf("unsupported proxy_type %q", p.Kind)
		}
		if p.Server == "" {
			return ConfigErrorf("proxy_ip is required when proxy is enabled")
		}
		if p.Port < 1 || p.Port > 65535 {
			return ConfigErrorf("proxy_port must be in 1..65535, got %d", p.Port)
		}
	}
	return nil
}

// parseIntField принимает и число, и строку с числом: страница шлёт значения input-ов как есть.
func parseIntField(name string, raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, ConfigErrorf("%s is required", name)
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, ConfigErrorf("%s: %w", name, err)
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return 0, ConfigErrorf("%s is required", name)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ConfigErrorf("%s must be an integer, got %q", name, s)
	}
	return v, nil
}
