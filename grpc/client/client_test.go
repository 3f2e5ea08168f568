package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Michael--/modular-runtime/logger"
)

type wrapped struct{ cc grpc.ClientConnInterface }

func countingFactory(dials *atomic.Int32, fail error) ConnectionFactory {
	return ConnectionFactoryFunc(func(_ context.Context, name string) (*grpc.ClientConn, error) {
		dials.Add(1)
		if fail != nil {
			return nil, fail
		}
		return grpc.NewClient("passthrough:///"+name, grpc.WithTransportCredentials(insecure.NewCredentials()))
	})
}

func TestLazyClient(t *testing.T) {
	var dials atomic.Int32
	lc := NewLazyClient("calculator", countingFactory(&dials, nil), func(cc grpc.ClientConnInterface) wrapped {
		return wrapped{cc: cc}
	}, logger.Nop())

	if lc.IsConnected() {
		t.Fatal("connected before first use")
	}
	ctx := context.Background()
	first, err := lc.GetClient(ctx)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	second, _ := lc.GetClient(ctx)
	if first.cc != second.cc || dials.Load() != 1 {
		t.Errorf("dials = %d, same conn %v", dials.Load(), first.cc == second.cc)
	}

	if err := lc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if lc.IsConnected() {
		t.Error("still connected after Reset")
	}
	third, _ := lc.GetClient(ctx)
	if third.cc == first.cc || dials.Load() != 2 {
		t.Errorf("Reset did not force a new dial, dials = %d", dials.Load())
	}
	if err := lc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := lc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLazyClient_DialFailure(t *testing.T) {
	var dials atomic.Int32
	boom := errors.New("no instance")
	lc := NewLazyClient("calculator", countingFactory(&dials, boom), func(grpc.ClientConnInterface) wrapped { return wrapped{} }, nil)

	for range 2 {
		if _, err := lc.GetClient(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("GetClient = %v", err)
		}
	}
	if dials.Load() != 2 || lc.IsConnected() {
		t.Errorf("dials = %d, connected %v", dials.Load(), lc.IsConnected())
	}
}

func TestOpenStreamWithTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		open    func(context.Context) (int, error)
		want    int
		wantErr bool
	}{
		{"no timeout", 0, func(context.Context) (int, error) { return 1, nil }, 1, false},
		{"opens in time", time.Second, func(context.Context) (int, error) { return 2, nil }, 2, false},
		{"open fails", time.Second, func(context.Context) (int, error) { return 0, errors.New("refused") }, 0, true},
		{"too slow", 10 * time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 3, nil
		}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			got, err := OpenStreamWithTimeout(ctx, tt.timeout, tt.open)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("got %d, %v", got, err)
			}
		})
	}
}
