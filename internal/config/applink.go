package config

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// AppLinkConfig configures the head-unit session client
type AppLinkConfig struct {
	// Registration
	AppName    string `env:"APP_NAME" envDefault:"Google Now"`
	AppID      string `env:"APP_ID" envDefault:"438316430"`
	IsMediaApp bool   `env:"IS_MEDIA_APP" envDefault:"true"`

	// Head unit link: tcp://host:port or ws(s)://host:port/path
	HeadUnitURL string `env:"HEAD_UNIT_URL" envDefault:"tcp://localhost:12345"`

	// Watchdog, in seconds
	ConnectTimeoutSec int `env:"CONNECT_TIMEOUT" envDefault:"60"`
	StopDelaySec      int `env:"STOP_SERVICE_DELAY" envDefault:"5"`

	// Audio pass-through
	CaptureDir    string `env:"CAPTURE_DIR" envDefault:"."`
	APTMaxRetries int    `env:"APT_MAX_RETRIES" envDefault:"3"`
	PlayerCommand string `env:"PLAYER_COMMAND" envDefault:"aplay"`

	// Capture history (disabled when REDIS_ADDR is empty)
	RedisAddr         string `env:"REDIS_ADDR" envDefault:""`
	RedisPassword     string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB           int    `env:"REDIS_DB" envDefault:"0"`
	CaptureHistoryTTL int    `env:"CAPTURE_HISTORY_TTL" envDefault:"86400"`
	CaptureHistoryMax int    `env:"CAPTURE_HISTORY_MAX" envDefault:"50"`

	// gRPC health endpoint (disabled when empty)
	StatusAddr string `env:"STATUS_ADDR" envDefault:""`

	Verbose bool `env:"VERBOSE" envDefault:"false"`
}

func (cfg *AppLinkConfig) ConnectTimeout() time.Duration {
	return time.Duration(cfg.ConnectTimeoutSec) * time.Second
}

func (cfg *AppLinkConfig) StopDelay() time.Duration {
	return time.Duration(cfg.StopDelaySec) * time.Second
}

func (cfg *AppLinkConfig) HistoryTTL() time.Duration {
	return time.Duration(cfg.CaptureHistoryTTL) * time.Second
}

// Validate checks the values env parsing cannot
func (cfg *AppLinkConfig) Validate() error {
	if cfg == nil {
		return errors.New("missing applink config")
	}
	if strings.TrimSpace(cfg.AppName) == "" || strings.TrimSpace(cfg.AppID) == "" {
		return errors.New("APP_NAME and APP_ID are required")
	}
	u, err := url.Parse(cfg.HeadUnitURL)
	if err != nil || u.Host == "" {
		return errors.New("HEAD_UNIT_URL must be tcp://host:port or ws(s)://host:port")
	}
	if cfg.ConnectTimeoutSec <= 0 || cfg.StopDelaySec <= 0 {
		return errors.New("CONNECT_TIMEOUT and STOP_SERVICE_DELAY must be positive")
	}
	if cfg.APTMaxRetries < 0 {
		return errors.New("APT_MAX_RETRIES must be >= 0")
	}
	return nil
}
