package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "out of huge pages", StatusOutOfHugePages.String())
	assert.Equal(t, "wait canceled", StatusWaitCanceled.String())
	assert.Equal(t, "unknown status (999)", Status(999).String())
}

func TestDeviceErrorFormatting(t *testing.T) {
	err := NewError(StatusTimeout, "waiting for completion")
	assert.Equal(t, "waiting for completion: timeout", err.Error())

	cause := errors.New("underlying")
	err = NewErrorWithCause(StatusDriverOperationFailed, "ioctl", cause)
	assert.Equal(t, "ioctl: driver operation failed: underlying", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestDeviceErrorIs(t *testing.T) {
	err := NewError(StatusNotFound, "opening device")
	wrapped := fmt.Errorf("outer: %w", err)

	assert.True(t, errors.Is(wrapped, NewError(StatusNotFound, "")))
	assert.False(t, errors.Is(wrapped, NewError(StatusTimeout, "")))
}

func TestErrnoToStatus(t *testing.T) {
	cases := []struct {
		errno unix.Errno
		want  Status
	}{
		{unix.ENOMEM, StatusOutOfHostMemory},
		{unix.ENOBUFS, StatusOutOfHugePages},
		{unix.ENOENT, StatusNotFound},
		{unix.ENODEV, StatusNotFound},
		{unix.ETIMEDOUT, StatusDriverTimeout},
		{unix.EINTR, StatusDriverInterrupted},
		{unix.ECANCELED, StatusWaitCanceled},
		{unix.EBUSY, StatusDeviceBusy},
		{unix.EINVAL, StatusInvalidArgument},
		{unix.EIO, StatusDriverOperationFailed},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ErrnoToStatus(c.errno), "errno %v", c.errno)
	}
}

func TestStatusFromErrnoKeepsCause(t *testing.T) {
	err := StatusFromErrno(unix.ENOENT, "opening device /dev/vfpga_0")
	assert.Equal(t, StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, unix.ENOENT))
}
