package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/nfrund/livedash/internal/pubsub"
)

// Config holds all configuration for the client and the reference backend.
type Config struct {
	BaseURL    string `validate:"required,url"`
	SocketPath string `validate:"required,startswith=/"`

	// Cookie is the raw session cookie header value attached to REST and
	// websocket requests. CookieFile, when set, is read instead and watched.
	Cookie     string
	CookieFile string

	NotificationCap int           `validate:"min=1,max=1000"`
	ToastDuration   time.Duration `validate:"gt=0"`
	BannerDuration  time.Duration `validate:"gt=0"`
	BotLogCap       int           `validate:"min=1"`
	HTTPTimeout     time.Duration `validate:"gte=0"`

	Tracing   pubsub.TracingConfig
	DevServer DevServer
}

// DevServer configures the bundled reference backend.
type DevServer struct {
	Addr            string        `validate:"required"`
	SessionSecret   string        `validate:"required,min=8"`
	OfflineDebounce time.Duration `validate:"gte=0"`
	// BotsDir holds the tengo bot scripts the admin page can start.
	BotsDir string
}

// Defaults returns a configuration pointing at a local devserver.
func Defaults() *Config {
	return &Config{
		BaseURL:         "http://localhost:8080",
		SocketPath:      "/socket",
		NotificationCap: 50,
		ToastDuration:   3 * time.Second,
		BannerDuration:  5 * time.Second,
		BotLogCap:       500,
		Tracing: pubsub.TracingConfig{
			ServiceName: "livedash",
			ZipkinURL:   "http://localhost:9411/api/v2/spans",
			SampleRatio: 1,
		},
		DevServer: DevServer{
			Addr:            ":8080",
			SessionSecret:   "livedash-dev-secret",
			OfflineDebounce: 0,
			BotsDir:         "bots",
		},
	}
}

// New loads configuration from a .env file (if present) and environment
// variables, then validates it.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a configuration from the process environment on top of
// Defaults without touching .env files.
func FromEnv() (*Config, error) {
	cfg := Defaults()

	cfg.BaseURL = envString("LIVEDASH_BASE_URL", cfg.BaseURL)
	cfg.SocketPath = envString("LIVEDASH_SOCKET_PATH", cfg.SocketPath)
	cfg.Cookie = envString("LIVEDASH_COOKIE", cfg.Cookie)
	cfg.CookieFile = envString("LIVEDASH_COOKIE_FILE", cfg.CookieFile)

	var err error
	if cfg.NotificationCap, err = envInt("LIVEDASH_NOTIFICATION_CAP", cfg.NotificationCap); err != nil {
		return nil, err
	}
	if cfg.BotLogCap, err = envInt("LIVEDASH_BOTLOG_CAP", cfg.BotLogCap); err != nil {
		return nil, err
	}
	if cfg.ToastDuration, err = envMillis("LIVEDASH_TOAST_MS", cfg.ToastDuration); err != nil {
		return nil, err
	}
	if cfg.BannerDuration, err = envMillis("LIVEDASH_BANNER_MS", cfg.BannerDuration); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = envMillis("LIVEDASH_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}

	if cfg.Tracing.Enabled, err = envBool("PUBSUB_TRACING_ENABLED", cfg.Tracing.Enabled); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = envString("PUBSUB_TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.ZipkinURL = envString("PUBSUB_TRACING_ZIPKIN_URL", cfg.Tracing.ZipkinURL)
	if cfg.Tracing.SampleRatio, err = envFloat("PUBSUB_TRACING_SAMPLE_RATIO", cfg.Tracing.SampleRatio); err != nil {
		return nil, err
	}

	cfg.DevServer.Addr = envString("DEVSERVER_ADDR", cfg.DevServer.Addr)
	cfg.DevServer.SessionSecret = envString("DEVSERVER_SESSION_SECRET", cfg.DevServer.SessionSecret)
	cfg.DevServer.BotsDir = envString("DEVSERVER_BOTS_DIR", cfg.DevServer.BotsDir)
	if cfg.DevServer.OfflineDebounce, err = envMillis("DEVSERVER_OFFLINE_DEBOUNCE_MS", cfg.DevServer.OfflineDebounce); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

// envMillis reads an integer number of milliseconds.
func envMillis(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be milliseconds: %w", key, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
