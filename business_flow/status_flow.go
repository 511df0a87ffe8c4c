package businessflow

import (
	"sync"

	"github.com/google/uuid"
)

// Component names exposed by GET /1.0/status
const (
	ComponentRestAPI      = "rest_api"
	ComponentBusConsumer  = "bus_consumer"
	ComponentPresenceInit = "presence_initialization"
	ComponentMasterTenant = "master_tenant"
)

// Component statuses
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// StatusAggregator tracks per-component readiness. It is shared by the HTTP
// plane, the bus consumer and the initiator loop.
type StatusAggregator struct {
	mu           sync.RWMutex
	components   map[string]string
	masterTenant uuid.UUID
	hasMaster    bool
	initialized  bool
}

// NewStatusAggregator starts with every component failing except rest_api,
// which is ok as soon as the process serves requests.
func NewStatusAggregator() *StatusAggregator {
	return &StatusAggregator{
		components: map[string]string{
			ComponentRestAPI:      StatusOK,
			ComponentBusConsumer:  StatusFail,
			ComponentPresenceInit: StatusFail,
			ComponentMasterTenant: StatusFail,
		},
	}
}

// SetOK marks the component ready
func (s *StatusAggregator) SetOK(component string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[component] = StatusOK
}

// SetFail marks the component not ready
func (s *StatusAggregator) SetFail(component string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[component] = StatusFail
}

// Snapshot returns the component map for health probes
func (s *StatusAggregator) Snapshot() map[string]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]string, len(s.components))
	for name, status := range s.components {
		out[name] = map[string]string{"status": status}
	}
	return out
}

// MarkInitialized records a successful bootstrap. Once set it stays set for
// the lifetime of the process even if a later re-bootstrap fails.
func (s *StatusAggregator) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	s.components[ComponentPresenceInit] = StatusOK
}

// Initialized reports whether at least one bootstrap completed
func (s *StatusAggregator) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SetMasterTenant records the tenant behind the service's own credentials
func (s *StatusAggregator) SetMasterTenant(tenant uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterTenant = tenant
	s.hasMaster = true
	s.components[ComponentMasterTenant] = StatusOK
}

// MasterTenant returns the master tenant once discovered
func (s *StatusAggregator) MasterTenant() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.masterTenant, s.hasMaster
}

// IsMasterTenant reports whether tenant is the discovered master tenant
func (s *StatusAggregator) IsMasterTenant(tenant uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMaster && s.masterTenant == tenant
}
