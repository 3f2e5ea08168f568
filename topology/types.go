package topology

import (
	"strings"
	"time"

	"github.com/Michael--/modular-runtime/validation"
)

// ServiceKind says whether a service calls others, serves others, or both.
type ServiceKind string

// Service kinds.
const (
	KindClient ServiceKind = "client"
	KindServer ServiceKind = "server"
	KindHybrid ServiceKind = "hybrid"
)

// Language is the implementation language reported to the registry.
type Language string

// LanguageGo is what this module reports.
const LanguageGo Language = "go"

// ActivityKind classifies an ActivityEvent.
type ActivityKind string

// Activity kinds.
const (
	ActivityRequestSent      ActivityKind = "request_sent"
	ActivityResponseReceived ActivityKind = "response_received"
	ActivityError            ActivityKind = "error"
)

// HealthState is the application-level health attached to stream heartbeats.
type HealthState string

// Health states.
const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// Descriptor identifies a service to the registry. It is built once from
// configuration and never mutated afterwards.
type Descriptor struct {
	ServiceName     string            `yaml:"name" mapstructure:"name" validate:"required"`
	Kind            ServiceKind       `yaml:"kind" mapstructure:"kind" validate:"required,oneof=client server hybrid"`
	Language        Language          `yaml:"language" mapstructure:"language"`
	Version         string            `yaml:"version" mapstructure:"version"`
	Address         string            `yaml:"address" mapstructure:"address"`
	Host            string            `yaml:"host" mapstructure:"host"`
	Interface       string            `yaml:"interface" mapstructure:"interface"`
	Role            string            `yaml:"role" mapstructure:"role"`
	ProgramName     string            `yaml:"program_name" mapstructure:"program_name"`
	Metadata        map[string]string `yaml:"metadata" mapstructure:"metadata"`
	ActivityEnabled bool              `yaml:"activity_enabled" mapstructure:"activity_enabled"`
}

// Validate checks the descriptor's struct tags.
func (d Descriptor) Validate() error {
	return validation.Struct(d)
}

// ActivityEvent records one interaction between this service and a target.
// Optional fields are nil when unknown.
type ActivityEvent struct {
	Target       string
	Kind         ActivityKind
	Timestamp    time.Time
	Latency      *time.Duration
	Method       string
	Success      *bool
	BatchSize    *int
	ErrorMessage string
}

// ServiceHandle is what a successful registration returns.
type ServiceHandle struct {
	ServiceID         string
	HeartbeatInterval time.Duration
	TimeoutMultiplier float64
}

// ApplicationHealth is sent with stream heartbeats.
type ApplicationHealth struct {
	State   HealthState
	Message string
}

// Heartbeat is one liveness signal.
type Heartbeat struct {
	ServiceID string
	Sequence  int64
	Health    *ApplicationHealth
	Metrics   map[string]float64
}

// Bool returns a pointer to v, for ActivityEvent.Success.
func Bool(v bool) *bool { return &v }

// Duration returns a pointer to d, for ActivityEvent.Latency.
func Duration(d time.Duration) *time.Duration { return &d }

// Int returns a pointer to v, for ActivityEvent.BatchSize.
func Int(v int) *int { return &v }

// Registry wire names. Both transports encode enums as their protobuf
// constant names, e.g. SERVICE_TYPE_CLIENT or ACTIVITY_TYPE_ERROR.
const (
	serviceTypePrefix  = "SERVICE_TYPE_"
	languagePrefix     = "SERVICE_LANGUAGE_"
	activityTypePrefix = "ACTIVITY_TYPE_"
	healthStatePrefix  = "HEALTH_STATE_"
)

// WireName returns k as SERVICE_TYPE_*.
func (k ServiceKind) WireName() string {
	return serviceTypePrefix + strings.ToUpper(string(k))
}

// ParseServiceKind is the inverse of ServiceKind.WireName.
func ParseServiceKind(s string) (ServiceKind, bool) {
	switch k := ServiceKind(strings.ToLower(strings.TrimPrefix(s, serviceTypePrefix))); k {
	case KindClient, KindServer, KindHybrid:
		return k, true
	default:
		return "", false
	}
}

// WireName returns l as SERVICE_LANGUAGE_*. An empty language is UNKNOWN.
func (l Language) WireName() string {
	if l == "" {
		return languagePrefix + "UNKNOWN"
	}
	return languagePrefix + strings.ToUpper(string(l))
}

// ParseLanguage accepts any SERVICE_LANGUAGE_* name.
func ParseLanguage(s string) (Language, bool) {
	if !strings.HasPrefix(s, languagePrefix) || len(s) == len(languagePrefix) {
		return "", false
	}
	return Language(strings.ToLower(strings.TrimPrefix(s, languagePrefix))), true
}

// WireName returns k as ACTIVITY_TYPE_*.
func (k ActivityKind) WireName() string {
	return activityTypePrefix + strings.ToUpper(string(k))
}

// ParseActivityKind is the inverse of ActivityKind.WireName.
func ParseActivityKind(s string) (ActivityKind, bool) {
	switch k := ActivityKind(strings.ToLower(strings.TrimPrefix(s, activityTypePrefix))); k {
	case ActivityRequestSent, ActivityResponseReceived, ActivityError:
		return k, true
	default:
		return "", false
	}
}

// WireName returns h as HEALTH_STATE_*.
func (h HealthState) WireName() string {
	if h == "" {
		return healthStatePrefix + "UNKNOWN"
	}
	return healthStatePrefix + strings.ToUpper(string(h))
}

// ParseHealthState is the inverse of HealthState.WireName. Unknown names
// map to HealthUnknown.
func ParseHealthState(s string) HealthState {
	switch h := HealthState(strings.ToLower(strings.TrimPrefix(s, healthStatePrefix))); h {
	case HealthHealthy, HealthDegraded, HealthUnhealthy:
		return h
	default:
		return HealthUnknown
	}
}
