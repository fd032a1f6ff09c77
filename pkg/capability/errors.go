package capability

// capError is a simple error type for the capability package
type capError string

func (e capError) Error() string { return string(e) }

// Errors for capability operations
const (
	ErrDuplicateName   = capError("register name already defined")
	ErrUnknownRegister = capError("unknown register name")
	ErrNotWritable     = capError("register is not writable")
	ErrNotReadable     = capError("register is not readable")
	ErrServiceClosed   = capError("capability service is closed")
)
