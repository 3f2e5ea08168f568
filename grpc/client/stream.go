package client

import (
	"context"
	"fmt"
	"time"
)

// OpenStreamWithTimeout runs open and gives up after connectTimeout. Only
// establishment is bounded; the stream itself lives as long as ctx. A
// stream that opens after the caller gave up is released when ctx ends, so
// ctx must be one the caller cancels.
func OpenStreamWithTimeout[S any](ctx context.Context, connectTimeout time.Duration, open func(context.Context) (S, error)) (S, error) {
	if connectTimeout <= 0 {
		return open(ctx)
	}

	type opened struct {
		s   S
		err error
	}
	done := make(chan opened, 1)
	go func() {
		s, err := open(ctx)
		done <- opened{s, err}
	}()

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	var zero S
	select {
	case o := <-done:
		return o.s, o.err
	case <-timer.C:
		return zero, fmt.Errorf("stream not established within %v", connectTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
