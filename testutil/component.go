// Package testutil runs lifecycle components inside tests and lets test
// doubles expose their state for reset, snapshot and restore.
package testutil

import (
	"context"

	"github.com/Michael--/modular-runtime/component"
)

// TestComponent is a component.Component a test can rewind.
type TestComponent interface {
	component.Component

	// Reset returns the component to its freshly started state.
	Reset(ctx context.Context) error

	// Snapshot captures the current state for a later Restore.
	Snapshot(ctx context.Context) (any, error)

	// Restore returns to a state captured by Snapshot.
	Restore(ctx context.Context, snapshot any) error
}
