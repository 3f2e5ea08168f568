package httpproxy

import (
	"time"

	"github.com/Michael--/modular-runtime/topology"
)

// Endpoint paths served by the topology reporter proxy.
const (
	PathRegister   = "/register"
	PathHeartbeat  = "/heartbeat"
	PathActivity   = "/activity"
	PathUnregister = "/unregister"
	PathHealth     = "/health"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	ServiceName      string            `json:"serviceName" binding:"required"`
	ServiceType      string            `json:"serviceType" binding:"required"`
	Language         string            `json:"language" binding:"required"`
	Version          string            `json:"version,omitempty"`
	Address          string            `json:"address,omitempty"`
	Host             string            `json:"host,omitempty"`
	ServiceInterface string            `json:"serviceInterface,omitempty"`
	ServiceRole      string            `json:"serviceRole,omitempty"`
	ProgramName      string            `json:"programName,omitempty"`
	EnableActivity   *bool             `json:"enableActivity,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// RegisterResponse is the body answering POST /register.
type RegisterResponse struct {
	ServiceID           string `json:"serviceId"`
	HeartbeatIntervalMs int64  `json:"heartbeatIntervalMs"`
}

// HeartbeatRequest is the body of POST /heartbeat.
type HeartbeatRequest struct {
	ServiceID string `json:"serviceId" binding:"required"`
	Sequence  int64  `json:"sequence,omitempty"`
}

// ActivityRequest is the body of POST /activity.
type ActivityRequest struct {
	ServiceID     string `json:"serviceId" binding:"required"`
	TargetService string `json:"targetService" binding:"required"`
	Type          string `json:"type" binding:"required"`
	TimestampMs   int64  `json:"timestampMs,omitempty"`
	LatencyMs     *int64 `json:"latencyMs,omitempty"`
	Method        string `json:"method,omitempty"`
	Success       *bool  `json:"success,omitempty"`
	BatchSize     *int   `json:"batchSize,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// UnregisterRequest is the body of POST /unregister.
type UnregisterRequest struct {
	ServiceID string `json:"serviceId" binding:"required"`
}

// StatusResponse acknowledges heartbeat, activity and unregister calls.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx proxy answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body answering GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Services int    `json:"services"`
}

// NewRegisterRequest encodes d.
func NewRegisterRequest(d topology.Descriptor) RegisterRequest {
	enable := d.ActivityEnabled
	return RegisterRequest{
		ServiceName:      d.ServiceName,
		ServiceType:      d.Kind.WireName(),
		Language:         d.Language.WireName(),
		Version:          d.Version,
		Address:          d.Address,
		Host:             d.Host,
		ServiceInterface: d.Interface,
		ServiceRole:      d.Role,
		ProgramName:      d.ProgramName,
		EnableActivity:   &enable,
		Metadata:         d.Metadata,
	}
}

// Descriptor decodes r. EnableActivity defaults to true.
func (r RegisterRequest) Descriptor() (topology.Descriptor, bool) {
	kind, ok := topology.ParseServiceKind(r.ServiceType)
	if !ok {
		return topology.Descriptor{}, false
	}
	lang, ok := topology.ParseLanguage(r.Language)
	if !ok {
		return topology.Descriptor{}, false
	}
	enable := true
	if r.EnableActivity != nil {
		enable = *r.EnableActivity
	}
	return topology.Descriptor{
		ServiceName:     r.ServiceName,
		Kind:            kind,
		Language:        lang,
		Version:         r.Version,
		Address:         r.Address,
		Host:            r.Host,
		Interface:       r.ServiceInterface,
		Role:            r.ServiceRole,
		ProgramName:     r.ProgramName,
		Metadata:        r.Metadata,
		ActivityEnabled: enable,
	}, true
}

// NewActivityRequest encodes ev for service id.
func NewActivityRequest(id string, ev topology.ActivityEvent) ActivityRequest {
	req := ActivityRequest{
		ServiceID:     id,
		TargetService: ev.Target,
		Type:          ev.Kind.WireName(),
		Method:        ev.Method,
		Success:       ev.Success,
		BatchSize:     ev.BatchSize,
		ErrorMessage:  ev.ErrorMessage,
	}
	if !ev.Timestamp.IsZero() {
		req.TimestampMs = ev.Timestamp.UnixMilli()
	}
	if ev.Latency != nil {
		ms := ev.Latency.Milliseconds()
		req.LatencyMs = &ms
	}
	return req
}

// Event decodes r.
func (r ActivityRequest) Event() (topology.ActivityEvent, bool) {
	kind, ok := topology.ParseActivityKind(r.Type)
	if !ok {
		return topology.ActivityEvent{}, false
	}
	ev := topology.ActivityEvent{
		Target:       r.TargetService,
		Kind:         kind,
		Method:       r.Method,
		Success:      r.Success,
		BatchSize:    r.BatchSize,
		ErrorMessage: r.ErrorMessage,
	}
	if r.TimestampMs > 0 {
		ev.Timestamp = time.UnixMilli(r.TimestampMs)
	}
	if r.LatencyMs != nil {
		ev.Latency = topology.Duration(time.Duration(*r.LatencyMs) * time.Millisecond)
	}
	return ev, true
}
