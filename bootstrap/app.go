package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/Michael--/modular-runtime/component"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
)

// App owns one process: its validated config, logger and components.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(topology.NewComponent(client))
//	return app.Run(ctx)
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger

	gracefulTimeout time.Duration
	telemetry       *observability.Config
	stopTelemetry   func(context.Context) error

	onStart     []Hook
	onReady     []Hook
	onStop      []Hook
	onConfigure []func(ctx context.Context, app *App[C]) error
}

// NewApp applies cfg's defaults, validates it and builds the logger from
// its Logging section.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	base := cfg.GetServiceConfig()
	s := newSettings(opts)

	log := s.log
	if log == nil {
		log = logger.Init(base.Logging, base.Name)
	}
	return &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		Logger:          log,
		Components:      component.NewRegistry(log),
		gracefulTimeout: s.gracefulTimeout,
		telemetry:       s.telemetry,
	}, nil
}

// RegisterComponent appends c to the start order.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// ReadyCheck fails when any component reports anything but healthy.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	if bad := component.NotHealthy(a.Components.HealthAll(ctx)); bad != "" {
		return fmt.Errorf("unhealthy components: %s", bad)
	}
	return nil
}

// Shutdown runs the stop sequence for callers that drive their own loop.
func (a *App[C]) Shutdown(context.Context) error {
	return a.stop()
}
