package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type (
	AppConfig struct {
		Env         string            `yaml:"env" env:"ENV" env-default:"prod"`
		HTTP        HTTPConfig        `yaml:"http"`
		SessionsDir string            `yaml:"sessions_dir" env:"SESSIONS_DIR" env-default:"sessions"`
		TDLib       TDLibConfig       `yaml:"tdlib"`
		Negotiation NegotiationConfig `yaml:"negotiation"`
		Transport   TransportConfig   `yaml:"transport"`
		Restart     RestartConfig     `yaml:"restart"`
		Redis       RedisConfig       `yaml:"redis"`
		S3          S3Config          `yaml:"s3"`
	}

	HTTPConfig struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8000"`
	}

	TDLibConfig struct {
		Dir           string `yaml:"dir" env:"TDLIB_DIR" env-default:"tdlib"`
		Verbosity     int32  `yaml:"verbosity" env:"TDLIB_VERBOSITY" env-default:"1"`
		DeviceModel   string `yaml:"device_model" env:"TDLIB_DEVICE_MODEL" env-default:"Desktop"`
		SystemVersion string `yaml:"system_version" env:"TDLIB_SYSTEM_VERSION" env-default:"Windows 10"`
		AppVersion    string `yaml:"app_version" env:"TDLIB_APP_VERSION" env-default:"2.0"`
		LangCode      string `yaml:"lang_code" env:"TDLIB_LANG_CODE" env-default:"en"`
		// ReleaseTimeout - сколько ждать остановки TDLib перед удалением рабочего каталога
		ReleaseTimeout time.Duration `yaml:"release_timeout" env:"TDLIB_RELEASE_TIMEOUT" env-default:"10s"`
	}

	NegotiationConfig struct {
		QRTimeout       time.Duration `yaml:"qr_timeout" env:"QR_TIMEOUT" env-default:"60s"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT" env-default:"30s"`
		ClientCountdown time.Duration `yaml:"client_countdown" env:"CLIENT_COUNTDOWN" env-default:"55s"`
	}

	TransportConfig struct {
		InboundRate  float64 `yaml:"inbound_rate" env:"WS_INBOUND_RATE" env-default:"5"`
		InboundBurst int     `yaml:"inbound_burst" env:"WS_INBOUND_BURST" env-default:"10"`
	}

	RestartConfig struct {
		Grace time.Duration `yaml:"grace" env:"RESTART_GRACE" env-default:"1s"`
	}

	// RedisConfig: пустой Addr - индекс строится по каталогу сессий
	RedisConfig struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
		Key      string `yaml:"key" env:"REDIS_KEY"`
	}

	// S3Config: пустой Bucket - зеркало выключено
	S3Config struct {
		Bucket string `yaml:"bucket" env:"AWS_BUCKET"`
		Region string `yaml:"region" env:"AWS_REGION"`
		Prefix string `yaml:"prefix" env:"AWS_PREFIX"`
	}
)

// Load читает .env (если есть), затем YAML по path (если задан) и переменные окружения.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg AppConfig
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("ошибка загрузки конфига %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения окружения: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.SessionsDir == "" || c.TDLib.Dir == "" {
		return errors.New("sessions_dir и tdlib.dir должны быть заданы")
	}
	n := c.Negotiation
	if n.QRTimeout <= 0 || n.ConnectTimeout <= 0 || n.ClientCountdown <= 0 {
		return errors.New("negotiation timeouts must be positive")
	}
	// страница должна показать "истёк" раньше, чем сервер пришлёт qr_timeout
	if n.ClientCountdown >= n.QRTimeout {
		return fmt.Errorf("negotiation.client_countdown (%s) must be less than qr_timeout (%s)",
			n.ClientCountdown, n.QRTimeout)
	}
	if c.TDLib.ReleaseTimeout <= 0 {
		return errors.New("tdlib.release_timeout must be positive")
	}
	if c.Transport.InboundRate <= 0 || c.Transport.InboundBurst <= 0 {
		return errors.New("transport.inbound_rate and inbound_burst must be positive")
	}
	return nil
}

// FetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func FetchConfigPath(args []string) (string, error) {
	var res string

	flags := pflag.NewFlagSet("sessionweb", pflag.ContinueOnError)
	flags.StringVarP(&res, "config", "c", "", "path to config file")
	if err := flags.Parse(args); err != nil {
		return "", err
	}

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res, nil
}
