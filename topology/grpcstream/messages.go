package grpcstream

import (
	"time"

	"github.com/Michael--/modular-runtime/topology"
)

// ServiceMetadata carries the optional descriptor fields.
type ServiceMetadata struct {
	ServiceInterface string            `json:"serviceInterface,omitempty"`
	ServiceRole      string            `json:"serviceRole,omitempty"`
	ProgramName      string            `json:"programName,omitempty"`
	Labels           map[string]string `json:"labels,omitempty"`
}

// RegisterServiceRequest registers one service instance.
type RegisterServiceRequest struct {
	ServiceName    string           `json:"serviceName"`
	ServiceType    string           `json:"serviceType"`
	Language       string           `json:"language"`
	Version        string           `json:"version,omitempty"`
	Address        string           `json:"address,omitempty"`
	Host           string           `json:"host,omitempty"`
	Metadata       *ServiceMetadata `json:"metadata,omitempty"`
	EnableActivity bool             `json:"enableActivity,omitempty"`
}

// ServiceHandle is the identity the registry assigns.
type ServiceHandle struct {
	ServiceID           string  `json:"serviceId"`
	HeartbeatIntervalMs int64   `json:"heartbeatIntervalMs"`
	TimeoutMultiplier   float64 `json:"timeoutMultiplier,omitempty"`
}

// RegisterServiceResponse answers RegisterService. A nil Handle is a
// failed registration.
type RegisterServiceResponse struct {
	Handle *ServiceHandle `json:"handle,omitempty"`
}

// UnregisterServiceRequest removes a service instance.
type UnregisterServiceRequest struct {
	ServiceID string `json:"serviceId"`
}

// UnregisterServiceResponse answers UnregisterService.
type UnregisterServiceResponse struct{}

// HealthStatus is the application health attached to a heartbeat.
type HealthStatus struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// HeartbeatRequest is one message on the heartbeat stream.
type HeartbeatRequest struct {
	ServiceID string             `json:"serviceId"`
	Sequence  int64              `json:"sequence"`
	Health    *HealthStatus      `json:"health,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// HeartbeatResponse acknowledges one heartbeat.
type HeartbeatResponse struct {
	Sequence     int64 `json:"sequence"`
	Acknowledged bool  `json:"acknowledged"`
}

// ReportActivityRequest is one message on the activity stream.
type ReportActivityRequest struct {
	ServiceID     string `json:"serviceId"`
	TargetService string `json:"targetService"`
	Type          string `json:"type"`
	TimestampMs   int64  `json:"timestampMs,omitempty"`
	LatencyMs     *int64 `json:"latencyMs,omitempty"`
	Method        string `json:"method,omitempty"`
	Success       *bool  `json:"success,omitempty"`
	BatchSize     *int   `json:"batchSize,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// ReportActivityResponse closes the activity stream.
type ReportActivityResponse struct {
	AcceptedEvents int64 `json:"acceptedEvents"`
}

// NewRegisterServiceRequest encodes d.
func NewRegisterServiceRequest(d topology.Descriptor) *RegisterServiceRequest {
	req := &RegisterServiceRequest{
		ServiceName:    d.ServiceName,
		ServiceType:    d.Kind.WireName(),
		Language:       d.Language.WireName(),
		Version:        d.Version,
		Address:        d.Address,
		Host:           d.Host,
		EnableActivity: d.ActivityEnabled,
	}
	if d.Interface != "" || d.Role != "" || d.ProgramName != "" || len(d.Metadata) > 0 {
		req.Metadata = &ServiceMetadata{
			ServiceInterface: d.Interface,
			ServiceRole:      d.Role,
			ProgramName:      d.ProgramName,
			Labels:           d.Metadata,
		}
	}
	return req
}

// Descriptor decodes r. It fails on an unknown service type or language.
func (r *RegisterServiceRequest) Descriptor() (topology.Descriptor, bool) {
	kind, ok := topology.ParseServiceKind(r.ServiceType)
	if !ok {
		return topology.Descriptor{}, false
	}
	lang, ok := topology.ParseLanguage(r.Language)
	if !ok {
		return topology.Descriptor{}, false
	}
	d := topology.Descriptor{
		ServiceName:     r.ServiceName,
		Kind:            kind,
		Language:        lang,
		Version:         r.Version,
		Address:         r.Address,
		Host:            r.Host,
		ActivityEnabled: r.EnableActivity,
	}
	if m := r.Metadata; m != nil {
		d.Interface, d.Role, d.ProgramName, d.Metadata = m.ServiceInterface, m.ServiceRole, m.ProgramName, m.Labels
	}
	return d, true
}

// NewHeartbeatRequest encodes hb.
func NewHeartbeatRequest(hb topology.Heartbeat) *HeartbeatRequest {
	req := &HeartbeatRequest{ServiceID: hb.ServiceID, Sequence: hb.Sequence, Metrics: hb.Metrics}
	if hb.Health != nil {
		req.Health = &HealthStatus{State: hb.Health.State.WireName(), Message: hb.Health.Message}
	}
	return req
}

// Heartbeat decodes r.
func (r *HeartbeatRequest) Heartbeat() topology.Heartbeat {
	hb := topology.Heartbeat{ServiceID: r.ServiceID, Sequence: r.Sequence, Metrics: r.Metrics}
	if r.Health != nil {
		hb.Health = &topology.ApplicationHealth{State: topology.ParseHealthState(r.Health.State), Message: r.Health.Message}
	}
	return hb
}

// NewReportActivityRequest encodes ev for service id.
func NewReportActivityRequest(id string, ev topology.ActivityEvent) *ReportActivityRequest {
	req := &ReportActivityRequest{
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
func (r *ReportActivityRequest) Event() (topology.ActivityEvent, bool) {
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
