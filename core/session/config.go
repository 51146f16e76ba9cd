package session

import (
	"log/slog"
	"time"
)

// ID formats accepted by Config.IDFormat.
const (
	IDFormatToken = "token"
	IDFormatUUID  = "uuid"
)

// Config holds session store configuration loaded from the environment.
type Config struct {
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	MaxAge     time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	IDFormat   string        `env:"SESSION_ID_FORMAT" envDefault:"token"`
}

// options are the resolved store settings.
type options struct {
	cookieName string
	maxAge     time.Duration
	generate   Generator
	verify     Verifier
	logger     *slog.Logger
}

// Option is a functional option for configuring the session store.
type Option func(*options)

// WithMaxAge sets the ttl used when records are persisted.
func WithMaxAge(maxAge time.Duration) Option {
	return func(o *options) {
		o.maxAge = maxAge
	}
}

// WithCookieName sets the name under which transports carry the session id.
func WithCookieName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.cookieName = name
		}
	}
}

// WithGenerator sets the id generator.
func WithGenerator(g Generator) Option {
	return func(o *options) {
		if g != nil {
			o.generate = g
		}
	}
}

// WithVerifier sets the predicate applied to client supplied ids.
func WithVerifier(v Verifier) Option {
	return func(o *options) {
		if v != nil {
			o.verify = v
		}
	}
}

// WithLogger sets the logger for store operations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// configOptions converts cfg into options. Zero values keep the defaults.
func configOptions(cfg Config) []Option {
	opts := []Option{WithCookieName(cfg.CookieName)}
	if cfg.MaxAge > 0 {
		opts = append(opts, WithMaxAge(cfg.MaxAge))
	}
	if cfg.IDFormat == IDFormatUUID {
		opts = append(opts, WithGenerator(UUIDGenerator), WithVerifier(UUIDVerifier))
	}
	return opts
}
