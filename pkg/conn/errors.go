package conn

// connError is a simple error type for the conn package
type connError string

func (e connError) Error() string { return string(e) }

// Errors for connection operations
const (
	ErrDuplicateConnection = connError("connection name already in use")
	ErrConnectionNotFound  = connError("connection not found")
	ErrHandshakeTimeout    = connError("handshake timed out")
	ErrQPExhausted         = connError("queue-pair range exhausted")
	ErrRegistryClosed      = connError("connection registry is closed")
	ErrSyncMismatch        = connError("unexpected sync frame")
)
