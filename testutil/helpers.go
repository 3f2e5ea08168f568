package testutil

import (
	"context"
	"testing"
)

// THelper binds component helpers to a test.
type THelper struct {
	t   testing.TB
	ctx context.Context
}

// T wraps t. Failures are reported through t.Fatalf.
//
//	disc := dtest.NewComponent()
//	testutil.T(t).Setup(disc)
func T(t testing.TB) *THelper {
	return &THelper{t: t, ctx: context.Background()}
}

// WithContext sets the context passed to the component.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// Setup starts c and stops it when the test ends.
func (h *THelper) Setup(c TestComponent) {
	h.t.Helper()
	if err := c.Start(h.ctx); err != nil {
		h.t.Fatalf("start %s: %v", c.Name(), err)
	}
	h.t.Cleanup(func() {
		if err := c.Stop(h.ctx); err != nil {
			h.t.Errorf("stop %s: %v", c.Name(), err)
		}
	})
}

// Reset rewinds c to its started state.
func (h *THelper) Reset(c TestComponent) {
	h.t.Helper()
	if err := c.Reset(h.ctx); err != nil {
		h.t.Fatalf("reset %s: %v", c.Name(), err)
	}
}

// Snapshot captures c's state.
func (h *THelper) Snapshot(c TestComponent) any {
	h.t.Helper()
	snap, err := c.Snapshot(h.ctx)
	if err != nil {
		h.t.Fatalf("snapshot %s: %v", c.Name(), err)
	}
	return snap
}

// Restore returns c to snap.
func (h *THelper) Restore(c TestComponent, snap any) {
	h.t.Helper()
	if err := c.Restore(h.ctx, snap); err != nil {
		h.t.Fatalf("restore %s: %v", c.Name(), err)
	}
}
