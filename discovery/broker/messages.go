package broker

import "github.com/Michael--/modular-runtime/discovery"

// ServiceInfo names an interface and the role a provider plays for it.
type ServiceInfo struct {
	InterfaceName string `json:"interfaceName"`
	Role          string `json:"role,omitempty"`
}

// RegisterServiceRequest announces a provider.
type RegisterServiceRequest struct {
	Info *ServiceInfo `json:"info,omitempty"`
	URL  string       `json:"url"`
	Port int32        `json:"port"`
}

// RegisterServiceResponse is empty.
type RegisterServiceResponse struct{}

// UnregisterServiceRequest withdraws the provider of an interface.
type UnregisterServiceRequest struct {
	InterfaceName string `json:"interfaceName"`
	Role          string `json:"role,omitempty"`
}

// UnregisterServiceResponse is empty.
type UnregisterServiceResponse struct{}

// LookupServiceRequest asks for one provider.
type LookupServiceRequest struct {
	InterfaceName string `json:"interfaceName"`
	Role          string `json:"role,omitempty"`
}

// LookupServiceResponse answers a lookup. A non-empty Error means the
// broker found nothing.
type LookupServiceResponse struct {
	URL   string `json:"url"`
	Port  int32  `json:"port"`
	Error string `json:"error,omitempty"`
}

// GetAvailableServicesRequest is empty.
type GetAvailableServicesRequest struct{}

// AvailableService is one entry of the broker's listing.
type AvailableService struct {
	Info *ServiceInfo `json:"info,omitempty"`
	URL  string       `json:"url"`
	Port int32        `json:"port"`
}

// GetAvailableServicesResponse lists every registered provider.
type GetAvailableServicesResponse struct {
	Services []AvailableService `json:"services"`
}

// NotifyServiceChangesRequest is empty.
type NotifyServiceChangesRequest struct{}

// NotifyServiceChangesResponse is one membership change.
type NotifyServiceChangesResponse struct {
	Info       *ServiceInfo `json:"info,omitempty"`
	URL        string       `json:"url"`
	Port       int32        `json:"port"`
	ChangeType string       `json:"changeType"`
}

// NewRegisterServiceRequest converts a Registration.
func NewRegisterServiceRequest(r discovery.Registration) *RegisterServiceRequest {
	return &RegisterServiceRequest{
		Info: &ServiceInfo{InterfaceName: r.Interface, Role: r.Role},
		URL:  r.Host,
		Port: int32(r.Port),
	}
}

// Registration converts r back, reporting false when Info is missing.
func (r *RegisterServiceRequest) Registration() (discovery.Registration, bool) {
	if r.Info == nil || r.Info.InterfaceName == "" {
		return discovery.Registration{}, false
	}
	return discovery.Registration{
		Interface: r.Info.InterfaceName,
		Role:      r.Info.Role,
		Host:      r.URL,
		Port:      int(r.Port),
	}, true
}

// Instance converts a listing entry; entries without Info are skipped.
func (s AvailableService) Instance() (discovery.ServiceInstance, bool) {
	if s.Info == nil {
		return discovery.ServiceInstance{}, false
	}
	return discovery.ServiceInstance{
		Interface: s.Info.InterfaceName,
		Role:      s.Info.Role,
		Host:      s.URL,
		Port:      int(s.Port),
	}, true
}

// Change converts a notification; unknown change types are skipped.
func (n *NotifyServiceChangesResponse) Change() (discovery.ServiceChange, bool) {
	kind := discovery.ChangeKind(n.ChangeType)
	if n.Info == nil || (kind != discovery.ChangeAdded && kind != discovery.ChangeRemoved) {
		return discovery.ServiceChange{}, false
	}
	return discovery.ServiceChange{
		Kind: kind,
		Instance: discovery.ServiceInstance{
			Interface: n.Info.InterfaceName,
			Role:      n.Info.Role,
			Host:      n.URL,
			Port:      int(n.Port),
		},
	}, true
}
