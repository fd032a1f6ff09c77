package driver

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status represents a vFPGA driver operation status code
type Status int

// Driver status codes
const (
	StatusSuccess               Status = 0
	StatusUninitialized         Status = 1
	StatusInvalidArgument       Status = 2
	StatusOutOfHostMemory       Status = 3
	StatusOutOfHugePages        Status = 4
	StatusTimeout               Status = 5
	StatusInvalidOperation      Status = 6
	StatusNotFound              Status = 7
	StatusInternalFailure       Status = 8
	StatusDriverOperationFailed Status = 9
	StatusDriverTimeout         Status = 10
	StatusDriverInterrupted     Status = 11
	StatusDriverInvalidIoctl    Status = 12
	StatusWaitCanceled          Status = 13
	StatusDeviceBusy            Status = 14
	StatusDeviceClosed          Status = 15
	StatusConnectionRefused     Status = 16
)

var statusMessages = map[Status]string{
	StatusSuccess:               "success",
	StatusUninitialized:         "uninitialized",
	StatusInvalidArgument:       "invalid argument",
	StatusOutOfHostMemory:       "out of host memory",
	StatusOutOfHugePages:        "out of huge pages",
	StatusTimeout:               "timeout",
	StatusInvalidOperation:      "invalid operation",
	StatusNotFound:              "not found",
	StatusInternalFailure:       "internal failure",
	StatusDriverOperationFailed: "driver operation failed",
	StatusDriverTimeout:         "driver timeout",
	StatusDriverInterrupted:     "driver interrupted",
	StatusDriverInvalidIoctl:    "driver invalid ioctl (version mismatch)",
	StatusWaitCanceled:          "wait canceled",
	StatusDeviceBusy:            "device busy",
	StatusDeviceClosed:          "device closed",
	StatusConnectionRefused:     "connection refused",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// DeviceError represents an error from the vFPGA driver boundary
type DeviceError struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target status
func (e *DeviceError) Is(target error) bool {
	var devErr *DeviceError
	if errors.As(target, &devErr) {
		return e.Status == devErr.Status
	}
	return false
}

// NewError creates a new DeviceError with the given status
func NewError(status Status, context string) *DeviceError {
	return &DeviceError{
		Status:  status,
		Context: context,
	}
}

// NewErrorWithCause creates a new DeviceError with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *DeviceError {
	return &DeviceError{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// ErrnoToStatus converts a Linux errno to a driver status
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.ENOMEM:
		return StatusOutOfHostMemory
	case unix.ENOBUFS:
		return StatusOutOfHugePages
	case unix.EFAULT:
		return StatusInvalidOperation
	case unix.ENOTTY:
		return StatusDriverInvalidIoctl
	case unix.ETIMEDOUT:
		return StatusDriverTimeout
	case unix.EINTR:
		return StatusDriverInterrupted
	case unix.ECANCELED:
		return StatusWaitCanceled
	case unix.EBUSY:
		return StatusDeviceBusy
	case unix.ECONNREFUSED:
		return StatusConnectionRefused
	case unix.ENOENT, unix.ENODEV:
		return StatusNotFound
	case unix.EINVAL:
		return StatusInvalidArgument
	default:
		return StatusDriverOperationFailed
	}
}

// StatusFromErrno creates a DeviceError from an errno
func StatusFromErrno(errno unix.Errno, context string) *DeviceError {
	return &DeviceError{
		Status:  ErrnoToStatus(errno),
		Context: context,
		Cause:   errno,
	}
}
