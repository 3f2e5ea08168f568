package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
)

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Run starts everything, serves until SIGINT, SIGTERM or ctx ends, then
// shuts down.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask starts everything and runs task with a context that a shutdown
// signal cancels. Shutdown follows as soon as task returns. The task's
// error takes precedence over a shutdown error.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.start(ctx); err != nil {
		return err
	}

	ctx, stopNotify := signal.NotifyContext(ctx, shutdownSignals...)
	taskErr := task(ctx)
	stopNotify()

	if err := a.stop(); err != nil && taskErr == nil {
		return err
	}
	return taskErr
}

// WaitForSignal blocks until a shutdown signal arrives or ctx ends. It
// returns nil in the latter case.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// start brings the process up: telemetry, components, OnStart hooks,
// configure callbacks, the ready check, then OnReady hooks. On failure,
// whatever already started is stopped again.
func (a *App[C]) start(ctx context.Context) error {
	began := time.Now()
	a.Logger.Info("Starting application", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.startup(ctx); err != nil {
		if stopErr := a.stop(); stopErr != nil {
			a.Logger.Warn("Cleanup after failed startup incomplete", logger.MergeWithError(nil, stopErr))
		}
		return err
	}

	a.Logger.Info("Application started", logger.Fields(
		"components", a.Components.Len(),
		logger.FieldDuration, time.Since(began).Milliseconds(),
	))
	return nil
}

func (a *App[C]) startup(ctx context.Context) error {
	if a.telemetry != nil {
		base := a.Cfg.GetServiceConfig()
		stop, err := observability.Setup(ctx, *a.telemetry, observability.Service{
			Name:        a.Name,
			Version:     a.Version,
			Environment: base.Environment,
		})
		if err != nil {
			return fmt.Errorf("observability setup: %w", err)
		}
		a.stopTelemetry = stop
	}

	if err := a.Components.StartAll(ctx); err != nil {
		return err
	}
	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart: %w", err)
	}
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
	}
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.MergeWithError(nil, err))
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		return fmt.Errorf("onReady: %w", err)
	}
	return nil
}

// stop runs OnStop hooks, stops components newest first and flushes
// telemetry, all within the graceful timeout. It reports the last failure.
func (a *App[C]) stop() error {
	a.Logger.Info("Shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var failed error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook failed", logger.MergeWithError(nil, err))
		failed = err
	}
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", logger.MergeWithError(nil, err))
		failed = err
	}
	if a.stopTelemetry != nil {
		if err := a.stopTelemetry(ctx); err != nil {
			a.Logger.Warn("Telemetry flush failed", logger.MergeWithError(nil, err))
		}
		a.stopTelemetry = nil
	}

	a.Logger.Info("Application shutdown complete")
	return failed
}
