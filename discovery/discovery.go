package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// Common discovery errors.
var (
	ErrServiceNotFound   = errors.New("service not found")
	ErrDiscoveryDisabled = errors.New("service discovery is disabled")
)

// DefaultRole is the role a Query asks for when it names none.
const DefaultRole = "default"

// ServiceInstance is one registered provider of an interface.
type ServiceInstance struct {
	Interface string            `yaml:"interface" mapstructure:"interface"`
	Role      string            `yaml:"role" mapstructure:"role"`
	Host      string            `yaml:"host" mapstructure:"host"`
	Port      int               `yaml:"port" mapstructure:"port"`
	Metadata  map[string]string `yaml:"metadata" mapstructure:"metadata"`
	LastSeen  time.Time         `yaml:"-" mapstructure:"-"`
}

// Address returns the host:port dial target.
func (s ServiceInstance) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Registration announces this process as a provider of an interface.
type Registration struct {
	Interface string `yaml:"interface" mapstructure:"interface"`
	Role      string `yaml:"role" mapstructure:"role"`
	Host      string `yaml:"host" mapstructure:"host"`
	Port      int    `yaml:"port" mapstructure:"port"`
}

// Enabled reports whether r names anything to register.
func (r Registration) Enabled() bool { return r.Interface != "" }

// Instance returns r as the instance other processes will discover.
func (r Registration) Instance() ServiceInstance {
	return ServiceInstance{Interface: r.Interface, Role: r.Role, Host: r.Host, Port: r.Port}
}

// Query selects instances by interface and role.
type Query struct {
	Interface string
	Role      string
}

// Normalize fills the default role.
func (q Query) Normalize() Query {
	if q.Role == "" {
		q.Role = DefaultRole
	}
	return q
}

// Matches reports whether inst serves q. An instance without a role serves
// every role.
func (q Query) Matches(inst ServiceInstance) bool {
	q = q.Normalize()
	return inst.Interface == q.Interface && (inst.Role == "" || inst.Role == q.Role) && inst.Host != "" && inst.Port > 0
}

// ChangeKind says how the set of instances changed.
type ChangeKind string

// Change kinds.
const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
)

// ServiceChange is one membership change.
type ServiceChange struct {
	Kind     ChangeKind
	Instance ServiceInstance
}

// Discovery finds providers of an interface.
type Discovery interface {
	// Available lists every instance the backend knows.
	Available(ctx context.Context) ([]ServiceInstance, error)

	// Lookup asks the backend for one instance serving q. It returns
	// ErrServiceNotFound when none does.
	Lookup(ctx context.Context, q Query) (ServiceInstance, error)

	// Watch emits membership changes until ctx ends.
	Watch(ctx context.Context) (<-chan ServiceChange, error)

	// Close releases any resources held by the discovery client.
	Close() error
}

// Find returns the first instance in list that serves q.
func Find(list []ServiceInstance, q Query) (ServiceInstance, bool) {
	for _, inst := range list {
		if q.Matches(inst) {
			return inst, true
		}
	}
	return ServiceInstance{}, false
}
