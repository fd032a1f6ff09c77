package capability

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Remote stub: exposes a service's named-register vocabulary to
// out-of-process callers over a plain byte stream. One request frame per
// operation, one response frame back; the schema carries names and
// values, nothing else.

const (
	remoteMagic = 0xCA11

	remoteOpRead  = 1
	remoteOpWrite = 2

	remoteStatusOK         = 0
	remoteStatusUnknown    = 1
	remoteStatusDenied     = 2
	remoteStatusInternal   = 3
	remoteStatusBadRequest = 4

	// magic(2) + op(1) + nameLen(1) + value(8)
	remoteReqHeaderSize = 12
	// status(1) + value(8)
	remoteRespSize = 9
)

// ErrRemoteDenied reports a permission failure surfaced by the stub
var ErrRemoteDenied = capError("remote register access denied")

// ErrRemoteBadRequest reports a well-framed request the stub cannot
// interpret, such as an unrecognized opcode
var ErrRemoteBadRequest = capError("malformed remote request")

// RemoteStub serves a Service's registers on a listener
type RemoteStub struct {
	service *Service
	log     *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewRemoteStub creates a stub over the given service
func NewRemoteStub(s *Service) *RemoteStub {
	return &RemoteStub{
		service: s,
		log:     s.log.WithField("component", "capability-stub"),
	}
}

// Serve accepts connections until the stub is closed. Blocks; run it on
// its own goroutine.
func (st *RemoteStub) Serve(l net.Listener) error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrServiceClosed
	}
	st.listener = l
	st.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			st.mu.Lock()
			closed := st.closed
			st.mu.Unlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, "accept failed")
		}
		go st.handleConn(conn)
	}
}

// Close stops the stub and its listener
func (st *RemoteStub) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	st.closed = true
	if st.listener != nil {
		return st.listener.Close()
	}
	return nil
}

func (st *RemoteStub) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		op, name, value, err := readRequest(conn)
		if err != nil {
			if err != io.EOF {
				st.log.WithError(err).Debug("remote request read failed")
			}
			return
		}

		var status uint8
		var result uint64
		switch op {
		case remoteOpRead:
			result, err = st.service.ReadRegister(context.Background(), name)
			status = remoteStatus(err)
		case remoteOpWrite:
			err = st.service.WriteRegister(context.Background(), name, value)
			status = remoteStatus(err)
		default:
			// Protocol violation, not a missing register.
			status = remoteStatusBadRequest
		}

		if err := writeResponse(conn, status, result); err != nil {
			return
		}
	}
}

// remoteStatus maps a service error to its wire status
func remoteStatus(err error) uint8 {
	switch err {
	case nil:
		return remoteStatusOK
	case ErrUnknownRegister:
		return remoteStatusUnknown
	case ErrNotReadable, ErrNotWritable:
		return remoteStatusDenied
	default:
		return remoteStatusInternal
	}
}

func readRequest(r io.Reader) (op uint8, name string, value uint64, err error) {
	var hdr [remoteReqHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, "", 0, err
	}
	if binary.BigEndian.Uint16(hdr[0:2]) != remoteMagic {
		return 0, "", 0, errors.New("bad request magic")
	}
	op = hdr[2]
	nameLen := int(hdr[3])
	value = binary.BigEndian.Uint64(hdr[4:12])

	nameBuf := make([]byte, nameLen)
	if _, err = io.ReadFull(r, nameBuf); err != nil {
		return 0, "", 0, err
	}
	return op, string(nameBuf), value, nil
}

func writeRequest(w io.Writer, op uint8, name string, value uint64) error {
	if len(name) > 255 {
		return errors.New("register name too long")
	}
	buf := make([]byte, remoteReqHeaderSize+len(name))
	binary.BigEndian.PutUint16(buf[0:2], remoteMagic)
	buf[2] = op
	buf[3] = uint8(len(name))
	binary.BigEndian.PutUint64(buf[4:12], value)
	copy(buf[remoteReqHeaderSize:], name)
	_, err := w.Write(buf)
	return err
}

func writeResponse(w io.Writer, status uint8, value uint64) error {
	var buf [remoteRespSize]byte
	buf[0] = status
	binary.BigEndian.PutUint64(buf[1:9], value)
	_, err := w.Write(buf[:])
	return err
}

func readResponse(r io.Reader) (uint8, uint64, error) {
	var buf [remoteRespSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, err
	}
	return buf[0], binary.BigEndian.Uint64(buf[1:9]), nil
}

// RemoteClient talks to a RemoteStub over one connection
type RemoteClient struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialRemote connects to a capability stub
func DialRemote(addr string) (*RemoteClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dialing capability stub")
	}
	return &RemoteClient{conn: conn}, nil
}

// ReadRegister reads a named register through the stub
func (c *RemoteClient) ReadRegister(name string) (uint64, error) {
	return c.roundTrip(remoteOpRead, name, 0)
}

// WriteRegister writes a named register through the stub
func (c *RemoteClient) WriteRegister(name string, value uint64) error {
	_, err := c.roundTrip(remoteOpWrite, name, value)
	return err
}

// Close closes the connection
func (c *RemoteClient) Close() error {
	return c.conn.Close()
}

func (c *RemoteClient) roundTrip(op uint8, name string, value uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := writeRequest(c.conn, op, name, value); err != nil {
		return 0, err
	}
	status, result, err := readResponse(c.conn)
	if err != nil {
		return 0, err
	}
	switch status {
	case remoteStatusOK:
		return result, nil
	case remoteStatusUnknown:
		return 0, ErrUnknownRegister
	case remoteStatusDenied:
		return 0, ErrRemoteDenied
	case remoteStatusBadRequest:
		return 0, ErrRemoteBadRequest
	default:
		return 0, errors.New("remote register operation failed")
	}
}
