package testutil

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/openaccel/vfpga/pkg/driver"
)

// SkipIfNoDevice skips the test if no vFPGA chardev is present
func SkipIfNoDevice(t *testing.T) string {
	t.Helper()

	for i := 0; i < driver.MaxVfpgaRegions; i++ {
		path := driver.DevicePath(i)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("No vFPGA device available")
	return ""
}

// WaitForCounter polls a counter until it reaches want or a timeout
// elapses, returning the last observed value.
func WaitForCounter(t *testing.T, read func() uint32, want uint32) uint32 {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got := read()
		if got >= want || time.Now().After(deadline) {
			return got
		}
		time.Sleep(time.Millisecond)
	}
}

// FreePort asks the kernel for a free TCP port for handshake tests
func FreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
