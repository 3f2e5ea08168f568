package client

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"

	"github.com/Michael--/modular-runtime/logger"
)

// LazyClient dials a peer on first use and hands out the same typed client
// until Reset. T wraps the connection, as generated gRPC clients do.
//
//	calc := client.NewLazyClient(calculator.ServiceName, factory, calculator.NewClient, log)
//	c, err := calc.GetClient(ctx)
type LazyClient[T any] struct {
	name string
	dial ConnectionFactory
	wrap func(grpc.ClientConnInterface) T
	log  *logger.Logger

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client T
}

// NewLazyClient prepares a client for serviceName without dialing.
func NewLazyClient[T any](serviceName string, factory ConnectionFactory, wrap func(grpc.ClientConnInterface) T, log *logger.Logger) *LazyClient[T] {
	if log == nil {
		log = logger.Nop()
	}
	return &LazyClient[T]{name: serviceName, dial: factory, wrap: wrap, log: log}
}

// GetClient returns the typed client, dialing when no connection is held.
// Concurrent callers wait for one dial.
func (c *LazyClient[T]) GetClient(ctx context.Context) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.client, nil
	}

	conn, err := c.dial.NewConn(ctx, c.name)
	if err != nil {
		var zero T
		c.log.Warn("gRPC connection failed", logger.MergeWithError(logger.Fields(logger.FieldService, c.name), err))
		return zero, fmt.Errorf("connect %s: %w", c.name, err)
	}
	c.conn, c.client = conn, c.wrap(conn)
	c.log.Info("gRPC client connected", logger.Fields(logger.FieldService, c.name, logger.FieldTarget, conn.Target()))
	return c.client, nil
}

// Reset drops the held connection so the next GetClient dials again,
// typically after the peer moved.
func (c *LazyClient[T]) Reset() error {
	c.mu.Lock()
	conn := c.conn
	var zero T
	c.conn, c.client = nil, zero
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c.name, err)
	}
	return nil
}

// Close releases the connection.
func (c *LazyClient[T]) Close() error { return c.Reset() }

// IsConnected reports whether a connection is held.
func (c *LazyClient[T]) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
