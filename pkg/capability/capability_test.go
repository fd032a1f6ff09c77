package capability

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaccel/vfpga/pkg/sched"
	"github.com/openaccel/vfpga/testutil"
)

// recordingEmitter captures audit records for test verification
type recordingEmitter struct {
	mu      sync.Mutex
	records []Record
}

func (r *recordingEmitter) Emit(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingEmitter) last() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func newTestService(t *testing.T) (*Service, *testutil.FakeRegisterIO, *recordingEmitter) {
	t.Helper()
	regio := testutil.NewFakeRegisterIO()
	audit := &recordingEmitter{}
	s := NewService("svc", regio, sched.NewInProcessLock(), WithAudit(audit))
	return s, regio, audit
}

func TestDefineReadWriteRoundTrip(t *testing.T) {
	s, regio, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.DefineRegister("CTRL", 0x10, true, true))
	require.NoError(t, s.WriteRegister(ctx, "CTRL", 5))

	got, err := s.ReadRegister(ctx, "CTRL")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)
	assert.Equal(t, uint64(5), regio.Value(0x10))

	reg, ok := s.Register("CTRL")
	require.True(t, ok)
	assert.Equal(t, uint64(5), reg.Value())
}

func TestDuplicateDefineLeavesFirstUnchanged(t *testing.T) {
	s, _, _ := newTestService(t)

	require.NoError(t, s.DefineRegister("CTRL", 0x10, true, true))
	err := s.DefineRegister("CTRL", 0x20, false, false)
	assert.ErrorIs(t, err, ErrDuplicateName)

	reg, ok := s.Register("CTRL")
	require.True(t, ok)
	assert.Equal(t, uint64(0x10), reg.Addr)
	assert.True(t, reg.Readable)
	assert.True(t, reg.Writable)
}

func TestWriteUnknownRegister(t *testing.T) {
	s, regio, audit := newTestService(t)

	err := s.WriteRegister(context.Background(), "NOPE", 1)
	assert.ErrorIs(t, err, ErrUnknownRegister)
	assert.Equal(t, 0, regio.AccessCount(), "denied write must not reach the device")

	rec := audit.last()
	assert.False(t, rec.Allowed)
	assert.Equal(t, "write", rec.Op)
}

func TestWriteReadOnlyRegisterNeverReachesDevice(t *testing.T) {
	s, regio, audit := newTestService(t)
	require.NoError(t, s.DefineRegister("STATUS", 0x28, true, false))

	for i := 0; i < 3; i++ {
		err := s.WriteRegister(context.Background(), "STATUS", 7)
		assert.ErrorIs(t, err, ErrNotWritable)
	}
	assert.Equal(t, 0, regio.AccessCount())
	assert.False(t, audit.last().Allowed)
}

func TestReadWriteOnlyRegister(t *testing.T) {
	s, _, _ := newTestService(t)
	require.NoError(t, s.DefineRegister("TRIGGER", 0x30, false, true))

	_, err := s.ReadRegister(context.Background(), "TRIGGER")
	assert.ErrorIs(t, err, ErrNotReadable)
}

func TestAuditTrailForAllowedAccess(t *testing.T) {
	s, _, audit := newTestService(t)
	require.NoError(t, s.DefineRegister("CTRL", 0x10, true, true))
	require.NoError(t, s.WriteRegister(context.Background(), "CTRL", 9))

	// define + write
	assert.Equal(t, 2, audit.count())
	rec := audit.last()
	assert.True(t, rec.Allowed)
	assert.Equal(t, "write", rec.Op)
	assert.Equal(t, uint64(9), rec.Value)
	assert.Equal(t, "CTRL", rec.Register)
	assert.Equal(t, "svc", rec.Service)
}

// Concurrent capability operations are serialized by the device lock;
// the fake device asserts no two accesses overlap.
func TestAccessesAreSerialized(t *testing.T) {
	s, regio, _ := newTestService(t)
	require.NoError(t, s.DefineRegister("CTRL", 0x10, true, true))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if n%2 == 0 {
					assert.NoError(t, s.WriteRegister(context.Background(), "CTRL", uint64(j)))
				} else {
					_, err := s.ReadRegister(context.Background(), "CTRL")
					assert.NoError(t, err)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.False(t, regio.Overlapped(), "register accesses overlapped")
	assert.Equal(t, 160, regio.AccessCount())
}

func TestCapabilityIDWrappers(t *testing.T) {
	s, regio, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.DefineCapability(CapRdma, 0x40))
	assert.Equal(t, "CAP_2", CapRdma.RegisterName())
	assert.Equal(t, "CAP_9", CapabilityID(9).RegisterName())

	require.NoError(t, s.EnableCapability(ctx, CapRdma))
	v, err := s.GetCapability(ctx, CapRdma)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, uint64(1), regio.Value(0x40))

	require.NoError(t, s.DisableCapability(ctx, CapRdma))
	v, err = s.GetCapability(ctx, CapRdma)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestRegistryReturnsSameInstancePerKey(t *testing.T) {
	reg := NewRegistry()
	regio := testutil.NewFakeRegisterIO()
	lock := sched.NewInProcessLock()

	a := reg.Acquire(0, "svc", regio, lock)
	b := reg.Acquire(0, "svc", regio, lock)
	assert.Same(t, a, b)

	c := reg.Acquire(1, "svc", regio, lock)
	assert.NotSame(t, a, c)
	d := reg.Acquire(0, "other", regio, lock)
	assert.NotSame(t, a, d)
	assert.Equal(t, 3, reg.Len())

	got, ok := reg.Lookup(0, "svc")
	require.True(t, ok)
	assert.Same(t, a, got)
}
