package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	defaultEndpoint = "localhost:4318"
	defaultInterval = 15 * time.Second
)

// Config selects which OpenTelemetry exporters a service starts. Both
// export over OTLP/HTTP to Endpoint.
type Config struct {
	Tracing    bool          `yaml:"tracing" mapstructure:"tracing"`
	Metrics    bool          `yaml:"metrics" mapstructure:"metrics"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills the exporter endpoint and cadence.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
}

// Service identifies the process on every exported span and metric.
type Service struct {
	Name        string
	Version     string
	Environment string
}

func (s Service) resource() (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String(AttrServiceName, s.Name),
		attribute.String("service.version", s.Version),
		attribute.String("deployment.environment", s.Environment),
	))
}

// Setup starts the exporters enabled in cfg and returns one function that
// flushes and stops them, newest first.
func Setup(ctx context.Context, cfg Config, svc Service) (func(context.Context) error, error) {
	cfg.ApplyDefaults()
	var stops []func(context.Context) error
	stopAll := func(ctx context.Context) error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i](ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.Tracing {
		tp, err := InitTracer(ctx, cfg, svc)
		if err != nil {
			return nil, err
		}
		stops = append(stops, tp.Shutdown)
	}
	if cfg.Metrics {
		mp, err := InitMeter(ctx, cfg, svc)
		if err != nil {
			_ = stopAll(ctx)
			return nil, err
		}
		stops = append(stops, mp.Shutdown)
	}
	return stopAll, nil
}
