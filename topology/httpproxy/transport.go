// Package httpproxy is the polling topology transport. It speaks JSON over
// HTTP to the topology reporter proxy, which holds the streaming
// connection to the registry on the caller's behalf.
package httpproxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Michael--/modular-runtime/httpclient"
	"github.com/Michael--/modular-runtime/security"
	"github.com/Michael--/modular-runtime/topology"
)

// DefaultBaseURL is where the proxy listens by default.
const DefaultBaseURL = topology.DefaultProxyAddress

const peerName = "topology proxy"

var _ topology.PollingTransport = (*Transport)(nil)

// Config configures a Transport.
type Config struct {
	BaseURL string              `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration       `yaml:"timeout" mapstructure:"timeout"`
	TLS     *security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// Transport implements topology.PollingTransport against the proxy.
type Transport struct {
	client *httpclient.Client
}

// New creates a Transport. An empty BaseURL means DefaultBaseURL.
func New(cfg Config) (*Transport, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client, err := httpclient.New(httpclient.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		TLS:     cfg.TLS,
	})
	if err != nil {
		return nil, err
	}
	return &Transport{client: client}, nil
}

// Register posts the descriptor. A missing heartbeat interval means
// topology.DefaultHeartbeatInterval.
func (t *Transport) Register(ctx context.Context, d topology.Descriptor) (topology.ServiceHandle, error) {
	var resp RegisterResponse
	if err := t.client.JSON(ctx, http.MethodPost, PathRegister, NewRegisterRequest(d), &resp); err != nil {
		return topology.ServiceHandle{}, classify("register", err)
	}
	if resp.ServiceID == "" {
		return topology.ServiceHandle{}, topology.NewProtocolError("register", "response missing serviceId", nil)
	}
	interval := time.Duration(resp.HeartbeatIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = topology.DefaultHeartbeatInterval
	}
	return topology.ServiceHandle{ServiceID: resp.ServiceID, HeartbeatInterval: interval}, nil
}

// Heartbeat posts one heartbeat.
func (t *Transport) Heartbeat(ctx context.Context, hb topology.Heartbeat) error {
	req := HeartbeatRequest{ServiceID: hb.ServiceID, Sequence: hb.Sequence}
	if err := t.client.JSON(ctx, http.MethodPost, PathHeartbeat, req, nil); err != nil {
		return classify("heartbeat", err)
	}
	return nil
}

// ReportActivity posts one event.
func (t *Transport) ReportActivity(ctx context.Context, id string, ev topology.ActivityEvent) error {
	if err := t.client.JSON(ctx, http.MethodPost, PathActivity, NewActivityRequest(id, ev), nil); err != nil {
		return classify("activity", err)
	}
	return nil
}

// Unregister posts the id.
func (t *Transport) Unregister(ctx context.Context, id string) error {
	if err := t.client.JSON(ctx, http.MethodPost, PathUnregister, UnregisterRequest{ServiceID: id}, nil); err != nil {
		return classify("unregister", err)
	}
	return nil
}

// Health asks the proxy how many services it holds.
func (t *Transport) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	if err := t.client.JSON(ctx, http.MethodGet, PathHealth, nil, &resp); err != nil {
		return HealthResponse{}, classify("health", err)
	}
	return resp, nil
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// classify maps httpclient errors onto the topology taxonomy: no answer is
// a transport failure, any answer other than 2xx is a protocol failure.
func classify(op string, err error) error {
	var he *httpclient.Error
	if !errors.As(err, &he) {
		return topology.NewTransportError(op, err)
	}
	if he.Reachable() {
		return topology.NewProtocolError(op, he.Message, he.ToAppError(peerName))
	}
	return topology.NewTransportError(op, he.ToAppError(peerName))
}
