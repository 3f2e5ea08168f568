// Package brokertest provides an in-memory broker.v1.BrokerService for
// tests, with failure injection and call counters.
package brokertest

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Michael--/modular-runtime/discovery"
	"github.com/Michael--/modular-runtime/discovery/broker"
	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/client"
	"github.com/Michael--/modular-runtime/grpc/server"
	"github.com/Michael--/modular-runtime/logger"
)

// Broker keeps registrations in registration order. Registering the same
// interface and role again replaces the earlier entry.
type Broker struct {
	mu        sync.Mutex
	services  []broker.AvailableService
	listeners map[chan *broker.NotifyServiceChangesResponse]struct{}

	unavailable bool
	hideListing bool

	registerCalls int
	lookupCalls   int
	listCalls     int
}

var _ broker.BrokerServiceServer = (*Broker)(nil)

// New creates an empty Broker.
func New() *Broker {
	return &Broker{listeners: make(map[chan *broker.NotifyServiceChangesResponse]struct{})}
}

// SetUnavailable makes every unary call fail with codes.Unavailable.
func (b *Broker) SetUnavailable(v bool) {
	b.mu.Lock()
	b.unavailable = v
	b.mu.Unlock()
}

// HideListing makes GetAvailableServices answer with an empty list, so
// clients must fall back to LookupService.
func (b *Broker) HideListing(v bool) {
	b.mu.Lock()
	b.hideListing = v
	b.mu.Unlock()
}

// Add registers an instance directly.
func (b *Broker) Add(inst discovery.ServiceInstance) {
	_, _ = b.RegisterService(context.Background(), broker.NewRegisterServiceRequest(discovery.Registration{
		Interface: inst.Interface, Role: inst.Role, Host: inst.Host, Port: inst.Port,
	}))
}

// Services returns how many providers are registered.
func (b *Broker) Services() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.services)
}

// Listeners returns how many change streams are open.
func (b *Broker) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Calls returns the register, lookup and list call counts.
func (b *Broker) Calls() (register, lookup, list int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registerCalls, b.lookupCalls, b.listCalls
}

func (b *Broker) RegisterService(_ context.Context, req *broker.RegisterServiceRequest) (*broker.RegisterServiceResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerCalls++
	if b.unavailable {
		return nil, status.Error(codes.Unavailable, "broker unavailable")
	}
	if req.Info == nil {
		return nil, status.Error(codes.InvalidArgument, "Invalid request")
	}
	entry := broker.AvailableService{Info: &broker.ServiceInfo{InterfaceName: req.Info.InterfaceName, Role: req.Info.Role}, URL: req.URL, Port: req.Port}
	if i := b.index(req.Info.InterfaceName, req.Info.Role, true); i >= 0 {
		b.services[i] = entry
	} else {
		b.services = append(b.services, entry)
	}
	b.notify(entry, discovery.ChangeAdded)
	return &broker.RegisterServiceResponse{}, nil
}

func (b *Broker) UnregisterService(_ context.Context, req *broker.UnregisterServiceRequest) (*broker.UnregisterServiceResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return nil, status.Error(codes.Unavailable, "broker unavailable")
	}
	i := b.index(req.InterfaceName, req.Role, false)
	if i < 0 {
		return nil, status.Error(codes.NotFound, "Service not found")
	}
	entry := b.services[i]
	b.services = append(b.services[:i], b.services[i+1:]...)
	b.notify(entry, discovery.ChangeRemoved)
	return &broker.UnregisterServiceResponse{}, nil
}

func (b *Broker) LookupService(_ context.Context, req *broker.LookupServiceRequest) (*broker.LookupServiceResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookupCalls++
	if b.unavailable {
		return nil, status.Error(codes.Unavailable, "broker unavailable")
	}
	q := discovery.Query{Interface: req.InterfaceName, Role: req.Role}
	for _, s := range b.services {
		if inst, ok := s.Instance(); ok && q.Matches(inst) {
			return &broker.LookupServiceResponse{URL: s.URL, Port: s.Port}, nil
		}
	}
	return &broker.LookupServiceResponse{Error: "Service not found"}, nil
}

func (b *Broker) GetAvailableServices(context.Context, *broker.GetAvailableServicesRequest) (*broker.GetAvailableServicesResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	if b.unavailable {
		return nil, status.Error(codes.Unavailable, "broker unavailable")
	}
	if b.hideListing {
		return &broker.GetAvailableServicesResponse{}, nil
	}
	out := make([]broker.AvailableService, len(b.services))
	copy(out, b.services)
	return &broker.GetAvailableServicesResponse{Services: out}, nil
}

func (b *Broker) NotifyServiceChanges(_ *broker.NotifyServiceChangesRequest, srv broker.ChangesServer) error {
	ch := make(chan *broker.NotifyServiceChangesResponse, 16)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.listeners, ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-srv.Context().Done():
			return nil
		case msg := <-ch:
			if err := srv.Send(msg); err != nil {
				return err
			}
		}
	}
}

// notify must be called with b.mu held. Slow listeners lose notifications.
func (b *Broker) notify(s broker.AvailableService, kind discovery.ChangeKind) {
	msg := &broker.NotifyServiceChangesResponse{Info: s.Info, URL: s.URL, Port: s.Port, ChangeType: string(kind)}
	for ch := range b.listeners {
		select {
		case ch <- msg:
		default:
		}
	}
}

// index finds an entry by interface and role. Unless exact, an empty role
// matches any entry of the interface.
func (b *Broker) index(iface, role string, exact bool) int {
	for i, s := range b.services {
		if s.Info.InterfaceName == iface && (s.Info.Role == role || (!exact && role == "")) {
			return i
		}
	}
	return -1
}

// Start serves b over bufconn for the duration of t and returns the client
// options that dial it.
func (b *Broker) Start(t testing.TB) []client.Option {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, err := server.New(grpccfg.Config{}, logger.Nop(), server.WithListener(lis))
	if err != nil {
		t.Fatalf("brokertest: %v", err)
	}
	broker.RegisterBrokerServiceServer(srv, b)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("brokertest: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	return []client.Option{client.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})}
}
