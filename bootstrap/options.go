package bootstrap

import (
	"time"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
)

const defaultGracefulTimeout = 15 * time.Second

// Option adjusts NewApp. Options carry no config type so one set serves
// every command.
type Option func(*settings)

type settings struct {
	log             *logger.Logger
	gracefulTimeout time.Duration
	telemetry       *observability.Config
}

func newSettings(opts []Option) settings {
	s := settings{gracefulTimeout: defaultGracefulTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger replaces the logger NewApp would build from the Logging
// section.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithGracefulTimeout bounds the whole shutdown sequence.
func WithGracefulTimeout(d time.Duration) Option {
	return func(s *settings) { s.gracefulTimeout = d }
}

// WithObservability starts the exporters enabled in cfg before any
// component and flushes them after the last one stops.
func WithObservability(cfg observability.Config) Option {
	return func(s *settings) { s.telemetry = &cfg }
}
