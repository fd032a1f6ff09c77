package testutil

import (
	"errors"
	"sync"
	"time"
)

// fakeAccessLatency simulates the device being busy for the duration of
// one register access, so overlapping callers are observable.
const fakeAccessLatency = 50 * time.Microsecond

// FakeRegisterIO implements driver.RegisterIO over an in-memory map. It
// records every access and detects accesses that overlap in time, which
// is how mutual-exclusion properties are verified without hardware.
type FakeRegisterIO struct {
	mu          sync.Mutex
	regs        map[uint64]uint64
	accesses    []RegAccess
	inFlight    int
	overlapped  bool
	failOnRead  bool
	failOnWrite bool
}

// RegAccess is one recorded register access
type RegAccess struct {
	Offset uint64
	Value  uint64
	Write  bool
}

// NewFakeRegisterIO creates an empty fake register file
func NewFakeRegisterIO() *FakeRegisterIO {
	return &FakeRegisterIO{
		regs: make(map[uint64]uint64),
	}
}

// FailOnRead makes subsequent reads fail
func (f *FakeRegisterIO) FailOnRead() {
	f.mu.Lock()
	f.failOnRead = true
	f.mu.Unlock()
}

// FailOnWrite makes subsequent writes fail
func (f *FakeRegisterIO) FailOnWrite() {
	f.mu.Lock()
	f.failOnWrite = true
	f.mu.Unlock()
}

// ReadReg reads a fake register
func (f *FakeRegisterIO) ReadReg(offset uint64) (uint64, error) {
	f.mu.Lock()
	if f.failOnRead {
		f.mu.Unlock()
		return 0, errors.New("fake read error")
	}
	f.enterLocked()
	f.mu.Unlock()

	time.Sleep(fakeAccessLatency)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitLocked()
	value := f.regs[offset]
	f.accesses = append(f.accesses, RegAccess{Offset: offset, Value: value})
	return value, nil
}

// WriteReg writes a fake register
func (f *FakeRegisterIO) WriteReg(offset uint64, value uint64) error {
	f.mu.Lock()
	if f.failOnWrite {
		f.mu.Unlock()
		return errors.New("fake write error")
	}
	f.enterLocked()
	f.mu.Unlock()

	time.Sleep(fakeAccessLatency)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitLocked()
	f.regs[offset] = value
	f.accesses = append(f.accesses, RegAccess{Offset: offset, Value: value, Write: true})
	return nil
}

// Value returns the current value of a fake register
func (f *FakeRegisterIO) Value(offset uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[offset]
}

// Set seeds a fake register value without recording an access
func (f *FakeRegisterIO) Set(offset uint64, value uint64) {
	f.mu.Lock()
	f.regs[offset] = value
	f.mu.Unlock()
}

// Accesses returns a copy of the access log
func (f *FakeRegisterIO) Accesses() []RegAccess {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RegAccess, len(f.accesses))
	copy(out, f.accesses)
	return out
}

// AccessCount returns the number of recorded accesses
func (f *FakeRegisterIO) AccessCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accesses)
}

// Overlapped reports whether two accesses were ever in flight at once
func (f *FakeRegisterIO) Overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlapped
}

func (f *FakeRegisterIO) enterLocked() {
	f.inFlight++
	if f.inFlight > 1 {
		f.overlapped = true
	}
}

func (f *FakeRegisterIO) exitLocked() {
	f.inFlight--
}
