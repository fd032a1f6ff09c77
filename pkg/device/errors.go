package device

import "errors"

// Errors for device handle operations
var (
	ErrNoDevices         = errors.New("no vFPGA devices found")
	ErrHandleClosed      = errors.New("device handle is closed")
	ErrAllocationFailure = errors.New("buffer allocation failed")
	ErrUnknownAllocation = errors.New("unknown allocation address")
	ErrZeroSizeBuffer    = errors.New("buffer size cannot be zero")
)
