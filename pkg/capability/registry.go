package capability

import (
	"sync"

	"github.com/openaccel/vfpga/pkg/driver"
	"github.com/openaccel/vfpga/pkg/sched"
)

// serviceKey identifies a capability service: multiple hardware contexts
// can coexist in one process, each with its own named services.
type serviceKey struct {
	ctxID uint32
	name  string
}

// Registry hands out exactly one Service per (context, name). A second
// acquisition with the same key returns the existing instance; there is
// no process-wide singleton.
type Registry struct {
	mu       sync.Mutex
	services map[serviceKey]*Service
}

// NewRegistry creates an empty capability registry
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[serviceKey]*Service),
	}
}

// Acquire returns the service for (ctxID, name), creating it on first use
// with the given register accessor and lock.
func (r *Registry) Acquire(ctxID uint32, name string, regio driver.RegisterIO, lock sched.DeviceLock, opts ...ServiceOption) *Service {
	key := serviceKey{ctxID: ctxID, name: name}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.services[key]; ok {
		return s
	}
	s := NewService(name, regio, lock, opts...)
	r.services[key] = s
	return s
}

// Lookup returns the service for (ctxID, name) if it exists
func (r *Registry) Lookup(ctxID uint32, name string) (*Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[serviceKey{ctxID: ctxID, name: name}]
	return s, ok
}

// Len returns the number of live services
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}
