//go:build integration

package device

import (
	"testing"

	"github.com/openaccel/vfpga/pkg/driver"
	"github.com/openaccel/vfpga/testutil"
)

func TestOpenAndCloseDevice(t *testing.T) {
	path := testutil.SkipIfNoDevice(t)

	h, err := OpenPath(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer h.Close()

	if h.Path() != path {
		t.Errorf("expected path %s, got %s", path, h.Path())
	}

	cfg := h.ShellConfig()
	if cfg.NRegions == 0 {
		t.Error("expected at least one region in shell config")
	}

	if err := h.Close(); err != nil {
		t.Errorf("failed to close device: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
}

func TestAllocAndFreeBuffer(t *testing.T) {
	path := testutil.SkipIfNoDevice(t)

	h, err := OpenPath(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer h.Close()

	buf, err := h.AllocBuffer(4096, false)
	if err != nil {
		t.Fatalf("failed to allocate buffer: %v", err)
	}
	if h.AllocationCount() != 1 {
		t.Errorf("expected 1 allocation, got %d", h.AllocationCount())
	}

	if err := h.FreeBuffer(buf.Addr()); err != nil {
		t.Errorf("failed to free buffer: %v", err)
	}
	if err := h.FreeBuffer(buf.Addr()); err != ErrUnknownAllocation {
		t.Errorf("double free should fail with ErrUnknownAllocation, got %v", err)
	}
}

func TestInvokeAndCheckCompleted(t *testing.T) {
	path := testutil.SkipIfNoDevice(t)

	h, err := OpenPath(path)
	if err != nil {
		t.Fatalf("failed to open device: %v", err)
	}
	defer h.Close()

	buf, err := h.AllocBuffer(4096, false)
	if err != nil {
		t.Fatalf("failed to allocate buffer: %v", err)
	}
	defer h.FreeBuffer(buf.Addr())

	before, err := h.CheckCompleted(driver.ChannelHostRead)
	if err != nil {
		t.Fatalf("failed to read writeback: %v", err)
	}

	if err := h.Invoke(driver.OpLocalRead, buf.Addr(), buf.Size(), driver.ChannelHostRead); err != nil {
		t.Fatalf("failed to invoke: %v", err)
	}

	after := testutil.WaitForCounter(t, func() uint32 {
		n, _ := h.CheckCompleted(driver.ChannelHostRead)
		return n
	}, before+1)
	if after < before+1 {
		t.Errorf("expected completion counter to advance, got %d -> %d", before, after)
	}
}
