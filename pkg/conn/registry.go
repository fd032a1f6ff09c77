// Package conn multiplexes several named RDMA/TCP point-to-point
// endpoints over one hardware context, so a single vFPGA can take part in
// multiple simultaneous exchanges. Each name owns its own handshake
// socket, DMA buffer and queue-pair number; traffic on one name can never
// satisfy a sync on another.
package conn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/openaccel/vfpga/pkg/device"
	"github.com/openaccel/vfpga/pkg/driver"
	"github.com/openaccel/vfpga/pkg/sched"
)

// DefaultHandshakeTimeout bounds connection setup and sync waits
const DefaultHandshakeTimeout = 10 * time.Second

// endpointPriority is the device-lock priority for programming endpoint
// context registers. Setup is short and administrative, like capability
// operations.
const endpointPriority uint8 = 4

// Allocator provides DMA-capable buffers for connections. device.Handle
// satisfies it through DeviceAllocator; tests substitute host memory.
type Allocator interface {
	Alloc(size uint64, hugePage bool) (uintptr, []byte, error)
	Free(addr uintptr) error
}

// DeviceAllocator adapts a device.Handle to the Allocator contract
type DeviceAllocator struct {
	Handle *device.Handle
}

// Alloc allocates and attaches a DMA buffer
func (d DeviceAllocator) Alloc(size uint64, hugePage bool) (uintptr, []byte, error) {
	buf, err := d.Handle.AllocBuffer(size, hugePage)
	if err != nil {
		return 0, nil, err
	}
	return buf.Addr(), buf.Data(), nil
}

// Free detaches and releases a DMA buffer
func (d DeviceAllocator) Free(addr uintptr) error {
	return d.Handle.FreeBuffer(addr)
}

// Connection is one named point-to-point endpoint
type Connection struct {
	name      string
	localQpn  uint32
	remoteQpn uint32
	sock      net.Conn
	bufAddr   uintptr
	buf       []byte
	bufLen    uint64
	isClient  bool

	mu        sync.Mutex
	syncToken uint32
}

// Name returns the connection name
func (c *Connection) Name() string { return c.name }

// LocalQpn returns the locally allocated queue-pair number
func (c *Connection) LocalQpn() uint32 { return c.localQpn }

// RemoteQpn returns the peer's queue-pair number
func (c *Connection) RemoteQpn() uint32 { return c.remoteQpn }

// Buffer returns the connection's DMA buffer
func (c *Connection) Buffer() []byte { return c.buf }

// Options configure a Registry
type Options struct {
	QPBase           uint32
	QPRange          uint32
	HandshakeTimeout time.Duration
	HugePages        bool
	Logger           *logrus.Entry
}

// Option mutates registry Options
type Option func(*Options)

// WithQPRange overrides the queue-pair number range
func WithQPRange(base, count uint32) Option {
	return func(o *Options) { o.QPBase, o.QPRange = base, count }
}

// WithHandshakeTimeout overrides the setup/sync wait bound
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

// WithHugePages backs connection buffers with huge pages
func WithHugePages(huge bool) Option {
	return func(o *Options) { o.HugePages = huge }
}

// WithLogger overrides the registry's logger
func WithLogger(l *logrus.Entry) Option {
	return func(o *Options) { o.Logger = l }
}

// Registry owns the named connections of one execution engine
type Registry struct {
	alloc   Allocator
	regio   driver.RegisterIO
	lock    sched.DeviceLock
	qp      *QPAllocator
	timeout time.Duration
	huge    bool
	log     *logrus.Entry

	mu      sync.Mutex
	conns   map[string]*Connection
	pending map[string]struct{}
	closed  bool
}

// NewRegistry creates a connection registry. regio and lock may be nil
// when no endpoint-context programming is wanted (host-only tests).
func NewRegistry(alloc Allocator, regio driver.RegisterIO, lock sched.DeviceLock, opts ...Option) *Registry {
	o := Options{
		QPBase:           0x100,
		QPRange:          MaxConnections,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = logrus.WithField("component", "conn")
	}
	return &Registry{
		alloc:   alloc,
		regio:   regio,
		lock:    lock,
		qp:      NewQPAllocator(o.QPBase, o.QPRange),
		timeout: o.HandshakeTimeout,
		huge:    o.HugePages,
		log:     logger,
		conns:   make(map[string]*Connection),
		pending: make(map[string]struct{}),
	}
}

// MaxConnections bounds the default queue-pair range
const MaxConnections = driver.MaxQueuePairs

// InitConnection sets up a named endpoint and returns its DMA buffer.
// With an empty remoteAddr the call takes the server role and waits for
// the peer on the given port; otherwise it connects to remoteAddr:port.
// Setup of distinct names may run concurrently; a second setup of the
// same name fails with ErrDuplicateConnection.
func (r *Registry) InitConnection(ctx context.Context, name string, bufferSize uint64, port int, remoteAddr string) ([]byte, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if _, ok := r.conns[name]; ok {
		r.mu.Unlock()
		return nil, ErrDuplicateConnection
	}
	if _, ok := r.pending[name]; ok {
		r.mu.Unlock()
		return nil, ErrDuplicateConnection
	}
	r.pending[name] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, name)
		r.mu.Unlock()
	}()

	qpn, err := r.qp.Alloc()
	if err != nil {
		return nil, err
	}

	bufAddr, buf, err := r.alloc.Alloc(bufferSize, r.huge)
	if err != nil {
		r.qp.Release(qpn)
		return nil, errors.Wrap(err, "allocating connection buffer")
	}

	c := &Connection{
		name:     name,
		localQpn: qpn,
		bufAddr:  bufAddr,
		buf:      buf,
		bufLen:   bufferSize,
		isClient: remoteAddr != "",
	}

	if err := r.handshake(ctx, c, port, remoteAddr); err != nil {
		r.alloc.Free(bufAddr)
		r.qp.Release(qpn)
		return nil, err
	}

	if err := r.programEndpoint(ctx, c, true); err != nil {
		c.sock.Close()
		r.alloc.Free(bufAddr)
		r.qp.Release(qpn)
		return nil, errors.Wrap(err, "programming endpoint context")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.sock.Close()
		r.alloc.Free(bufAddr)
		r.qp.Release(qpn)
		return nil, ErrRegistryClosed
	}
	r.conns[name] = c
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"name":       name,
		"local_qpn":  c.localQpn,
		"remote_qpn": c.remoteQpn,
		"client":     c.isClient,
	}).Debug("connection established")
	return buf, nil
}

// handshake performs the out-of-band exchange of endpoint identifiers
func (r *Registry) handshake(ctx context.Context, c *Connection, port int, remoteAddr string) error {
	deadline := time.Now().Add(r.timeout)

	var sock net.Conn
	if c.isClient {
		d := net.Dialer{Deadline: deadline}
		s, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", remoteAddr, port))
		if err != nil {
			return handshakeErr(ctx, err)
		}
		sock = s
	} else {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return errors.Wrap(err, "listening for peer")
		}
		defer l.Close()
		if tl, ok := l.(*net.TCPListener); ok {
			tl.SetDeadline(deadline)
		}
		s, err := l.Accept()
		if err != nil {
			return handshakeErr(ctx, err)
		}
		sock = s
	}
	sock.SetDeadline(deadline)

	hello := frame{
		Type:       frameHello,
		Qpn:        c.localQpn,
		BufferAddr: uint64(c.bufAddr),
		BufferLen:  uint32(c.bufLen),
	}
	// Client speaks first; server answers. Either way both sides learn
	// the peer's queue pair.
	var peer frame
	var err error
	if c.isClient {
		if err = writeFrame(sock, hello); err == nil {
			peer, err = readFrame(sock)
		}
	} else {
		if peer, err = readFrame(sock); err == nil {
			err = writeFrame(sock, hello)
		}
	}
	if err != nil {
		sock.Close()
		return handshakeErr(ctx, err)
	}
	if peer.Type != frameHello {
		sock.Close()
		return errors.New("unexpected handshake frame type")
	}

	c.remoteQpn = peer.Qpn
	sock.SetDeadline(time.Time{})
	c.sock = sock
	return nil
}

// handshakeErr maps network failures to the package's error taxonomy
func handshakeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return ErrHandshakeTimeout
	}
	return errors.Wrap(err, "handshake failed")
}

// programEndpoint writes the endpoint context registers for a connection
// under the device lock. Only this final step needs the device; the
// network phase runs without it.
func (r *Registry) programEndpoint(ctx context.Context, c *Connection, enable bool) error {
	if r.regio == nil || r.lock == nil {
		return nil
	}
	if err := r.lock.Lock(ctx, "conn/"+c.name, endpointPriority); err != nil {
		return err
	}
	defer r.lock.Unlock()

	qpWord := uint64(c.localQpn)<<32 | uint64(c.remoteQpn)
	if err := r.regio.WriteReg(driver.RegConnQpn, qpWord); err != nil {
		return err
	}
	if !enable {
		return r.regio.WriteReg(driver.RegConnCtl, 0)
	}
	if err := r.regio.WriteReg(driver.RegConnAddr, uint64(c.bufAddr)); err != nil {
		return err
	}
	if err := r.regio.WriteReg(driver.RegConnLen, c.bufLen); err != nil {
		return err
	}
	return r.regio.WriteReg(driver.RegConnCtl, 1)
}

// Sync exchanges one synchronization token with the peer of the named
// connection, coordinating ready/done phases. The exchange uses only
// that connection's handshake socket.
func (r *Registry) Sync(name string, isClient bool) error {
	r.mu.Lock()
	c, ok := r.conns[name]
	r.mu.Unlock()
	if !ok {
		return ErrConnectionNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncToken++
	out := frame{Type: frameSync, Qpn: c.localQpn, Token: c.syncToken}

	c.sock.SetDeadline(time.Now().Add(r.timeout))
	defer c.sock.SetDeadline(time.Time{})

	var in frame
	var err error
	if isClient {
		if err = writeFrame(c.sock, out); err == nil {
			in, err = readFrame(c.sock)
		}
	} else {
		if in, err = readFrame(c.sock); err == nil {
			err = writeFrame(c.sock, out)
		}
	}
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return ErrHandshakeTimeout
		}
		return errors.Wrapf(err, "sync on %q failed", name)
	}
	if in.Type != frameSync {
		return ErrSyncMismatch
	}
	return nil
}

// CloseConnection tears down a named endpoint: disables its endpoint
// context, closes the handshake socket, frees the buffer and reclaims
// the queue-pair number. Closing an unknown name is an error.
func (r *Registry) CloseConnection(name string) error {
	r.mu.Lock()
	c, ok := r.conns[name]
	if ok {
		delete(r.conns, name)
	}
	r.mu.Unlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return r.teardown(c)
}

func (r *Registry) teardown(c *Connection) error {
	err := r.programEndpoint(context.Background(), c, false)
	err = multierr.Append(err, c.sock.Close())
	err = multierr.Append(err, r.alloc.Free(c.bufAddr))
	r.qp.Release(c.localQpn)
	r.log.WithField("name", c.name).Debug("connection closed")
	return err
}

// HasConnection reports whether a name is currently established
func (r *Registry) HasConnection(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[name]
	return ok
}

// ConnectionCount returns the number of established connections
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// ConnectionNames returns the established names, unordered
func (r *Registry) ConnectionNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	return names
}

// CloseAll tears down every connection and marks the registry closed
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, r.teardown(c))
	}
	return err
}
