// Package capability provides a named, access-controlled view over raw
// vFPGA registers. Application code can only touch registers that were
// explicitly defined, with explicit read/write permissions; every access
// is serialized through the device lock and audited.
package capability

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openaccel/vfpga/pkg/driver"
	"github.com/openaccel/vfpga/pkg/sched"
)

// OperatorPriority is the fixed device-lock priority used for register
// operations. Register pokes are short and administrative; they should
// neither starve nor preempt bulk transfers.
const OperatorPriority uint8 = 4

// RegInfo describes one named register and its cached value
type RegInfo struct {
	Name     string
	Addr     uint64
	Readable bool
	Writable bool
	value    uint64
}

// Value returns the last value observed through this capability
func (r *RegInfo) Value() uint64 {
	return r.value
}

// Service is a named, permissioned register view bound to one hardware
// context. All accesses go through the context's device lock, making them
// linearizable with any other lock user.
type Service struct {
	name    string
	regio   driver.RegisterIO
	lock    sched.DeviceLock
	lockTag string
	audit   AuditEmitter
	log     *logrus.Entry

	mu   sync.RWMutex
	regs map[string]*RegInfo
}

// ServiceOption mutates a Service under construction
type ServiceOption func(*Service)

// WithAudit attaches an audit backend
func WithAudit(a AuditEmitter) ServiceOption {
	return func(s *Service) { s.audit = a }
}

// NewService creates a capability service over the given register
// accessor and device lock. Use a Registry when several contexts or
// service names coexist in one process.
func NewService(name string, regio driver.RegisterIO, lock sched.DeviceLock, opts ...ServiceOption) *Service {
	s := &Service{
		name:    name,
		regio:   regio,
		lock:    lock,
		lockTag: "capability/" + name,
		audit:   NopEmitter{},
		regs:    make(map[string]*RegInfo),
		log: logrus.WithFields(logrus.Fields{
			"component": "capability",
			"service":   name,
		}),
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// Name returns the service name
func (s *Service) Name() string {
	return s.name
}

// DefineRegister exposes a register under a name with explicit
// permissions. A reused name fails with ErrDuplicateName and leaves the
// first definition unchanged.
func (s *Service) DefineRegister(name string, addr uint64, readable, writable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regs[name]; ok {
		s.audit.Emit(Record{
			Service: s.name, Register: name, Op: "define",
			Allowed: false, Reason: "duplicate name",
		})
		return ErrDuplicateName
	}
	s.regs[name] = &RegInfo{
		Name:     name,
		Addr:     addr,
		Readable: readable,
		Writable: writable,
	}
	s.audit.Emit(Record{
		Service: s.name, Register: name, Op: "define",
		Value: addr, Allowed: true,
	})
	return nil
}

// Register returns a copy of the named register's definition
func (s *Service) Register(name string) (RegInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regs[name]
	if !ok {
		return RegInfo{}, false
	}
	return *reg, true
}

// RegisterNames returns the defined names, unordered
func (s *Service) RegisterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.regs))
	for name := range s.regs {
		names = append(names, name)
	}
	return names
}

// WriteRegister writes a value to a named register. The write is denied
// before touching the device if the name is undefined or not writable.
func (s *Service) WriteRegister(ctx context.Context, name string, value uint64) error {
	s.mu.RLock()
	reg, ok := s.regs[name]
	s.mu.RUnlock()
	if !ok {
		s.deny(name, "write", "unknown register")
		return ErrUnknownRegister
	}
	if !reg.Writable {
		s.deny(name, "write", "not writable")
		return ErrNotWritable
	}

	if err := s.lock.Lock(ctx, s.lockTag, OperatorPriority); err != nil {
		return err
	}
	err := s.regio.WriteReg(reg.Addr, value)
	s.lock.Unlock()
	if err != nil {
		return err
	}

	s.mu.Lock()
	reg.value = value
	s.mu.Unlock()
	s.audit.Emit(Record{
		Service: s.name, Register: name, Op: "write",
		Value: value, Allowed: true,
	})
	return nil
}

// ReadRegister reads a named register, gated by the readable flag
func (s *Service) ReadRegister(ctx context.Context, name string) (uint64, error) {
	s.mu.RLock()
	reg, ok := s.regs[name]
	s.mu.RUnlock()
	if !ok {
		s.deny(name, "read", "unknown register")
		return 0, ErrUnknownRegister
	}
	if !reg.Readable {
		s.deny(name, "read", "not readable")
		return 0, ErrNotReadable
	}

	if err := s.lock.Lock(ctx, s.lockTag, OperatorPriority); err != nil {
		return 0, err
	}
	value, err := s.regio.ReadReg(reg.Addr)
	s.lock.Unlock()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	reg.value = value
	s.mu.Unlock()
	s.audit.Emit(Record{
		Service: s.name, Register: name, Op: "read",
		Value: value, Allowed: true,
	})
	return value, nil
}

func (s *Service) deny(name, op, reason string) {
	s.audit.Emit(Record{
		Service: s.name, Register: name, Op: op,
		Allowed: false, Reason: reason,
	})
}
