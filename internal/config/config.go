// Package config loads the gateway settings from the environment, replaces
// out-of-range values with defaults and checks the combinations that cannot
// work together.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Prefix is prepended to every environment variable name.
const Prefix = "CHAT_GATEWAY_"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Auth modes.
const (
	AuthSession = "session"
	AuthJWT     = "jwt"
)

// RateLimitConfig defines the parameters for per-connection frame rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"           envDefault:"5"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds every setting of the gateway.
type Config struct {
	Addr           string          `env:"ADDR"             envDefault:":8080"`
	AllowedOrigins []string        `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize int64           `env:"MAX_MESSAGE_SIZE" envDefault:"65536"`
	RateLimit      RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	SendBuffer       int           `env:"SEND_BUFFER"       envDefault:"256"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	PongWait         time.Duration `env:"PONG_WAIT"         envDefault:"60s"`
	PingPeriod       time.Duration `env:"PING_PERIOD"       envDefault:"54s"`
	WriteWait        time.Duration `env:"WRITE_WAIT"        envDefault:"10s"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	Store        string        `env:"STORE"         envDefault:"postgres" validate:"oneof=memory postgres"`
	DatabaseURL  string        `env:"DATABASE_URL"                        validate:"required_if=Store postgres"`
	RedisAddr    string        `env:"REDIS_ADDR"`

	Auth      string `env:"AUTH"       envDefault:"session" validate:"oneof=session jwt"`
	JWTSecret string `env:"JWT_SECRET"                      validate:"required_if=Auth jwt"`

	// DevTokens and DevChannels seed the memory store: every token maps to a
	// user id and every such user is a member of every listed channel.
	DevTokens   map[string]string `env:"DEV_TOKENS"   envSeparator:"," envKeyValSeparator:":"`
	DevChannels []string          `env:"DEV_CHANNELS" envSeparator:","`

	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT"       envDefault:"text" validate:"oneof=text json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	cfg, err := FromEnvironment(map[string]string{})
	if err != nil {
		panic(fmt.Sprintf("config defaults do not parse: %v", err))
	}
	return cfg
}

// Load reads the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// FromEnvironment reads vars instead of the process environment. Keys carry
// the prefix.
func FromEnvironment(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg.Sanitize(), nil
}

// Sanitize replaces zero or negative limits with their defaults and trims the
// origin list.
func (c Config) Sanitize() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 65536
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	// Pings must go out before the peer's read deadline expires.
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.Auth = strings.ToLower(strings.TrimSpace(c.Auth))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
	return c
}

// Validate reports settings that cannot be used together, such as the
// postgres backend without a database URL.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(names, ", "))
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
