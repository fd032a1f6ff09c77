//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaccel/vfpga/pkg/capability"
	"github.com/openaccel/vfpga/pkg/conn"
	"github.com/openaccel/vfpga/pkg/device"
	"github.com/openaccel/vfpga/pkg/driver"
	"github.com/openaccel/vfpga/pkg/engine"
	"github.com/openaccel/vfpga/pkg/sched"
	"github.com/openaccel/vfpga/testutil"
)

func openDevice(t *testing.T) (*device.Handle, *sched.FileLock) {
	t.Helper()
	testutil.SkipIfNoDevice(t)

	h, err := device.OpenFirst()
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	lk, err := sched.ForDevice(t.TempDir(), "integration")
	require.NoError(t, err)
	return h, lk
}

func TestEngineInvokesOnHardware(t *testing.T) {
	h, lk := openDevice(t)

	eng := engine.New(engine.WithLock(lk), engine.WithLockTag("integration"))
	require.NoError(t, eng.Start())
	defer eng.Stop()

	const n = 16
	for i := 0; i < n; i++ {
		task := &engine.FuncTask{
			TaskID: uint64(i),
			Fn: func(ctx context.Context) (uint64, error) {
				return 0, h.Invoke(driver.OpNop, 0, 0, driver.ChannelHostWrite)
			},
		}
		require.NoError(t, eng.Schedule(task))
	}
	eng.Stop()

	assert.Equal(t, uint64(n), eng.CompletedCount())
	for {
		c, ok := eng.NextCompletion()
		if !ok {
			break
		}
		assert.NoError(t, c.Err)
	}
}

func TestCapabilityGatesDatapath(t *testing.T) {
	h, lk := openDevice(t)

	caps := capability.NewService("integration", h.Registers(), lk)
	require.NoError(t, caps.DefineCapability(capability.CapDatapath, 0x40))

	ctx := context.Background()
	require.NoError(t, caps.EnableCapability(ctx, capability.CapDatapath))
	v, err := caps.GetCapability(ctx, capability.CapDatapath)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	require.NoError(t, caps.DisableCapability(ctx, capability.CapDatapath))
}

func TestConnectionLoopbackOnHardware(t *testing.T) {
	h, lk := openDevice(t)

	alloc := conn.DeviceAllocator{Handle: h}
	server := conn.NewRegistry(alloc, h.Registers(), lk)
	client := conn.NewRegistry(alloc, nil, nil, conn.WithQPRange(0x500, 16))
	defer server.CloseAll()
	defer client.CloseAll()

	port := testutil.FreePort(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var serverErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, serverErr = server.InitConnection(ctx, "loop", 4096, port, "")
	}()
	time.Sleep(100 * time.Millisecond)
	_, err := client.InitConnection(ctx, "loop", 4096, port, "127.0.0.1")
	wg.Wait()
	require.NoError(t, serverErr)
	require.NoError(t, err)

	assert.True(t, server.HasConnection("loop"))
	assert.True(t, client.HasConnection("loop"))

	wg.Add(1)
	go func() {
		defer wg.Done()
		serverErr = server.Sync("loop", false)
	}()
	require.NoError(t, client.Sync("loop", true))
	wg.Wait()
	require.NoError(t, serverErr)

	require.NoError(t, server.CloseConnection("loop"))
	require.NoError(t, client.CloseConnection("loop"))
}
