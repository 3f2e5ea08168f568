package bootstrap

import (
	"context"
	"fmt"
)

// Hook runs at a fixed point of the lifecycle.
type Hook func(ctx context.Context) error

// OnStart adds hooks that run once every component has started.
func (a *App[C]) OnStart(hooks ...Hook) { a.onStart = append(a.onStart, hooks...) }

// OnReady adds hooks that run after the ready check, just before the
// process starts serving or its task begins.
func (a *App[C]) OnReady(hooks ...Hook) { a.onReady = append(a.onReady, hooks...) }

// OnStop adds hooks that run first during shutdown, while every component
// is still up.
func (a *App[C]) OnStop(hooks ...Hook) { a.onStop = append(a.onStop, hooks...) }

// OnConfigure adds a callback that sees the started App and its typed
// config. Callbacks run after the OnStart hooks.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// runHooks runs hooks in order and stops at the first failure.
func runHooks(ctx context.Context, hooks []Hook) error {
	for i, h := range hooks {
		if err := h(ctx); err != nil {
			return fmt.Errorf("hook %d: %w", i, err)
		}
	}
	return nil
}
