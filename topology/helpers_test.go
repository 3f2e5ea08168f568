package topology_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/topology"
)

var fastBackoff = resilience.BackoffConfig{
	Initial:    5 * time.Millisecond,
	Max:        20 * time.Millisecond,
	Multiplier: 2,
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testDescriptor(activity bool) topology.Descriptor {
	return topology.Descriptor{
		ServiceName:     "calc-client",
		Kind:            topology.KindClient,
		Language:        topology.LanguageGo,
		Version:         "1.0.0",
		ActivityEnabled: activity,
	}
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeSignals struct {
	mu      sync.Mutex
	ch      chan<- os.Signal
	stopped bool
}

func (f *fakeSignals) notify(c chan<- os.Signal, _ ...os.Signal) {
	f.mu.Lock()
	f.ch = c
	f.mu.Unlock()
}

func (f *fakeSignals) stop(chan<- os.Signal) {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// send delivers sig unless the watcher has already gone away.
func (f *fakeSignals) send(sig os.Signal) bool {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	select {
	case ch <- sig:
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

func (f *fakeSignals) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}
