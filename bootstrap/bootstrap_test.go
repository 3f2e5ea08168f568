package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Michael--/modular-runtime/component"
	"github.com/Michael--/modular-runtime/config"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
)

type testConfig struct {
	config.ServiceConfig
}

type fakeComponent struct {
	name     string
	startErr error
	health   component.Health
	started  atomic.Bool
	stopped  atomic.Bool
	order    *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Store(true)
	if f.order != nil {
		*f.order = append(*f.order, "start:"+f.name)
	}
	return nil
}

func (f *fakeComponent) Stop(context.Context) error {
	f.stopped.Store(true)
	if f.order != nil {
		*f.order = append(*f.order, "stop:"+f.name)
	}
	return nil
}

func (f *fakeComponent) Health(context.Context) component.Health { return f.health }

func newTestApp(t *testing.T, opts ...Option) *App[*testConfig] {
	t.Helper()
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "calculator-server", Version: "1.2.3"}}
	app, err := NewApp(cfg, append([]Option{WithLogger(logger.Nop())}, opts...)...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t)

	if app.Name != "calculator-server" || app.Version != "1.2.3" {
		t.Errorf("unexpected identity %q %q", app.Name, app.Version)
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("expected defaults applied, got environment %q", app.Cfg.Environment)
	}
	if app.Components == nil {
		t.Error("expected non-nil component registry")
	}
	if app.gracefulTimeout != 15*time.Second {
		t.Errorf("expected default 15s, got %v", app.gracefulTimeout)
	}
}

func TestNewApp_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ServiceConfig
	}{
		{name: "missing name", cfg: config.ServiceConfig{}},
		{name: "bad environment", cfg: config.ServiceConfig{Name: "svc", Environment: "qa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewApp(&testConfig{ServiceConfig: tt.cfg}, WithLogger(logger.Nop())); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewApp_Options(t *testing.T) {
	log := logger.Nop()
	app, err := NewApp(&testConfig{ServiceConfig: config.ServiceConfig{Name: "svc"}},
		WithLogger(log),
		WithGracefulTimeout(3*time.Second),
	)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if app.Logger != log {
		t.Error("expected custom logger")
	}
	if app.gracefulTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %v", app.gracefulTimeout)
	}
}

func TestRegisterComponent_Duplicate(t *testing.T) {
	app := newTestApp(t)
	if err := app.RegisterComponent(&fakeComponent{name: "topology"}); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if err := app.RegisterComponent(&fakeComponent{name: "topology"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if _, ok := app.Components.Lookup("topology"); !ok {
		t.Fatal("expected component to be retrievable")
	}
}

func TestReadyCheck(t *testing.T) {
	tests := []struct {
		name    string
		health  []component.Health
		wantErr bool
	}{
		{name: "empty"},
		{name: "all healthy", health: []component.Health{
			{Name: "grpc-server", Status: component.StatusHealthy},
			{Name: "topology", Status: component.StatusHealthy},
		}},
		{name: "unhealthy", wantErr: true, health: []component.Health{
			{Name: "broker", Status: component.StatusUnhealthy, Message: "not registered"},
		}},
		{name: "degraded", wantErr: true, health: []component.Health{
			{Name: "topology", Status: component.StatusDegraded},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			for _, h := range tt.health {
				_ = app.RegisterComponent(&fakeComponent{name: h.Name, health: h})
			}
			err := app.ReadyCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadyCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunHooks_StopsAtFirstError(t *testing.T) {
	secondCalled := false
	err := runHooks(context.Background(), []Hook{
		func(context.Context) error { return fmt.Errorf("fail") },
		func(context.Context) error { secondCalled = true; return nil },
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if secondCalled {
		t.Fatal("second hook ran after the first failed")
	}
}

func TestRunTask_Lifecycle(t *testing.T) {
	app := newTestApp(t)
	var order []string

	_ = app.RegisterComponent(&fakeComponent{name: "grpc-server", order: &order,
		health: component.Health{Name: "grpc-server", Status: component.StatusHealthy}})
	_ = app.RegisterComponent(&fakeComponent{name: "topology", order: &order,
		health: component.Health{Name: "topology", Status: component.StatusHealthy}})

	app.OnStart(func(context.Context) error { order = append(order, "onStart"); return nil })
	app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
		if a.Cfg.Name != "calculator-server" {
			t.Errorf("unexpected cfg in configure: %q", a.Cfg.Name)
		}
		order = append(order, "configure")
		return nil
	})
	app.OnReady(func(context.Context) error { order = append(order, "onReady"); return nil })
	app.OnStop(func(context.Context) error { order = append(order, "onStop"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	want := []string{
		"start:grpc-server", "start:topology",
		"onStart", "configure", "onReady", "task", "onStop",
		"stop:topology", "stop:grpc-server",
	}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestRunTask_Errors(t *testing.T) {
	taskErr := errors.New("task error")

	tests := []struct {
		name    string
		setup   func(app *App[*testConfig])
		task    func(context.Context) error
		wantErr error
	}{
		{
			name:    "task error returned",
			task:    func(context.Context) error { return taskErr },
			wantErr: taskErr,
		},
		{
			name: "start hook error",
			setup: func(app *App[*testConfig]) {
				app.OnStart(func(context.Context) error { return errors.New("hook") })
			},
			task: func(context.Context) error { return nil },
		},
		{
			name: "configure error",
			setup: func(app *App[*testConfig]) {
				app.OnConfigure(func(context.Context, *App[*testConfig]) error { return errors.New("configure") })
			},
			task: func(context.Context) error { return nil },
		},
		{
			name: "component start error",
			setup: func(app *App[*testConfig]) {
				_ = app.RegisterComponent(&fakeComponent{name: "broker", startErr: errors.New("unreachable")})
			},
			task: func(context.Context) error { return nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			if tt.setup != nil {
				tt.setup(app)
			}
			err := app.RunTask(context.Background(), tt.task)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunTask_StopsStartedComponentsOnStartupFailure(t *testing.T) {
	app := newTestApp(t)
	first := &fakeComponent{name: "grpc-server"}
	_ = app.RegisterComponent(first)
	_ = app.RegisterComponent(&fakeComponent{name: "broker", startErr: errors.New("unreachable")})

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error")
	}
	if !first.stopped.Load() {
		t.Fatal("expected started component to be stopped")
	}
}

func TestRunTask_Cancellation(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := app.RunTask(ctx, func(taskCtx context.Context) error {
		cancel()
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_ContextCancelStops(t *testing.T) {
	app := newTestApp(t)
	comp := &fakeComponent{name: "topology"}
	_ = app.RegisterComponent(comp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !comp.started.Load() {
		if time.Now().After(deadline) {
			t.Fatal("component never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !comp.stopped.Load() {
		t.Fatal("expected component stopped")
	}
}

func TestRun_ObservabilityDisabledExporters(t *testing.T) {
	app := newTestApp(t, WithObservability(observability.Config{}))
	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RunTask: %v", err)
	}
}

func TestWaitForSignal_ContextCancellation(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if sig := app.WaitForSignal(ctx); sig != nil {
		t.Fatalf("expected nil signal, got %v", sig)
	}
}
