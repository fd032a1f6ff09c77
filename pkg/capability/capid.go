package capability

import (
	"context"
	"fmt"
)

// CapabilityID is a typed capability identifier. Each id maps to one
// reserved register name so audit logs stay human-readable.
type CapabilityID uint32

// Well-known capability ids
const (
	CapDatapath   CapabilityID = 0
	CapWriteback  CapabilityID = 1
	CapRdma       CapabilityID = 2
	CapHugePages  CapabilityID = 3
	CapInterrupts CapabilityID = 4
)

var capNames = map[CapabilityID]string{
	CapDatapath:   "CAP_0",
	CapWriteback:  "CAP_1",
	CapRdma:       "CAP_2",
	CapHugePages:  "CAP_3",
	CapInterrupts: "CAP_4",
}

// RegisterName returns the reserved register name for a capability id
func (id CapabilityID) RegisterName() string {
	if name, ok := capNames[id]; ok {
		return name
	}
	return fmt.Sprintf("CAP_%d", uint32(id))
}

// DefineCapability exposes a capability register (readable and writable)
// at the given address.
func (s *Service) DefineCapability(id CapabilityID, addr uint64) error {
	return s.DefineRegister(id.RegisterName(), addr, true, true)
}

// SetCapability writes a raw capability value
func (s *Service) SetCapability(ctx context.Context, id CapabilityID, value uint64) error {
	return s.WriteRegister(ctx, id.RegisterName(), value)
}

// GetCapability reads a raw capability value
func (s *Service) GetCapability(ctx context.Context, id CapabilityID) (uint64, error) {
	return s.ReadRegister(ctx, id.RegisterName())
}

// EnableCapability sets a capability to 1
func (s *Service) EnableCapability(ctx context.Context, id CapabilityID) error {
	return s.SetCapability(ctx, id, 1)
}

// DisableCapability sets a capability to 0
func (s *Service) DisableCapability(ctx context.Context, id CapabilityID) error {
	return s.SetCapability(ctx, id, 0)
}
