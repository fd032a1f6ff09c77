package device

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/openaccel/vfpga/pkg/driver"
)

// Handle represents one opened vFPGA hardware context. It owns the mapped
// register windows and the allocation map; all other components reference
// it but never re-open the chardev.
type Handle struct {
	df    *driver.DeviceFile
	ctxID uint32
	shell *driver.ShellConfig
	ctrl  *driver.MappedWindow
	cnfg  *driver.MappedWindow
	wb    *driver.MappedWindow
	log   *logrus.Entry

	mu          sync.RWMutex
	allocations map[uintptr]*Buffer
	closed      bool
}

// Open opens the vFPGA region with the given index and registers the
// calling process as one hardware context.
func Open(region int) (*Handle, error) {
	return OpenPath(driver.DevicePath(region))
}

// OpenPath opens a vFPGA region by chardev path
func OpenPath(path string) (*Handle, error) {
	df, err := driver.OpenDevice(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open device")
	}

	ctxID, err := df.RegisterCtx(uint32(os.Getpid()))
	if err != nil {
		df.Close()
		return nil, errors.Wrap(err, "failed to register context")
	}

	shell, err := df.ReadShellConfig()
	if err != nil {
		df.UnregisterCtx(ctxID)
		df.Close()
		return nil, errors.Wrap(err, "failed to read shell config")
	}

	ctrl, err := df.MapCtrlWindow()
	if err != nil {
		df.UnregisterCtx(ctxID)
		df.Close()
		return nil, errors.Wrap(err, "failed to map control window")
	}

	cnfg, err := df.MapCnfgWindow()
	if err != nil {
		ctrl.Unmap()
		df.UnregisterCtx(ctxID)
		df.Close()
		return nil, errors.Wrap(err, "failed to map config window")
	}

	wb, err := df.MapWritebackWindow()
	if err != nil {
		cnfg.Unmap()
		ctrl.Unmap()
		df.UnregisterCtx(ctxID)
		df.Close()
		return nil, errors.Wrap(err, "failed to map writeback window")
	}

	h := &Handle{
		df:          df,
		ctxID:       ctxID,
		shell:       shell,
		ctrl:        ctrl,
		cnfg:        cnfg,
		wb:          wb,
		allocations: make(map[uintptr]*Buffer),
		log: logrus.WithFields(logrus.Fields{
			"component": "device",
			"path":      path,
			"ctx_id":    ctxID,
		}),
	}
	h.log.Debug("opened vFPGA context")
	return h, nil
}

// OpenFirst opens the first available vFPGA region
func OpenFirst() (*Handle, error) {
	devices, err := driver.ScanDevices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan devices")
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	return OpenPath(devices[0])
}

// CtxID returns the hardware context id assigned by the shell
func (h *Handle) CtxID() uint32 {
	return h.ctxID
}

// Path returns the chardev path
func (h *Handle) Path() string {
	return h.df.Path()
}

// ShellConfig returns the static shell configuration
func (h *Handle) ShellConfig() driver.ShellConfig {
	return *h.shell
}

// Registers returns the config window as a raw register accessor
func (h *Handle) Registers() driver.RegisterIO {
	return h.cnfg
}

// RegRead reads a 64-bit config register
func (h *Handle) RegRead(offset uint64) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrHandleClosed
	}
	return h.cnfg.ReadReg(offset)
}

// RegWrite writes a 64-bit config register
func (h *Handle) RegWrite(offset uint64, value uint64) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHandleClosed
	}
	return h.cnfg.WriteReg(offset, value)
}

// CtrlRead reads a 64-bit user-logic control register
func (h *Handle) CtrlRead(offset uint64) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrHandleClosed
	}
	return h.ctrl.ReadReg(offset)
}

// CtrlWrite writes a 64-bit user-logic control register
func (h *Handle) CtrlWrite(offset uint64, value uint64) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHandleClosed
	}
	return h.ctrl.WriteReg(offset, value)
}

// Invoke programs one control-path operation and kicks it off. The caller
// is responsible for holding the device lock while invoking.
func (h *Handle) Invoke(op driver.OpCode, vaddr uintptr, length uint64, dest driver.CompletionChannel) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHandleClosed
	}
	if err := h.cnfg.WriteReg(driver.RegVaddr, uint64(vaddr)); err != nil {
		return err
	}
	if err := h.cnfg.WriteReg(driver.RegLen, length); err != nil {
		return err
	}
	if err := h.cnfg.WriteReg(driver.RegPid, uint64(h.ctxID)); err != nil {
		return err
	}
	ctrl := uint64(driver.CtrlStart) |
		uint64(op)<<driver.CtrlOpShift |
		uint64(dest)<<driver.CtrlDstShift
	return h.cnfg.WriteReg(driver.RegCtrl, ctrl)
}

// CheckCompleted reads the writeback counter for a completion channel
func (h *Handle) CheckCompleted(ch driver.CompletionChannel) (uint32, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrHandleClosed
	}
	return h.wb.ReadWriteback(int(ch))
}

// EventFd returns an event descriptor signalled on region interrupts
func (h *Handle) EventFd() (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return -1, ErrHandleClosed
	}
	return h.df.GetEventFd(h.ctxID)
}

// PrintDebug logs the current control-path state
func (h *Handle) PrintDebug() {
	stat, _ := h.RegRead(driver.RegStat)
	h.log.WithFields(logrus.Fields{
		"stat":        stat,
		"allocations": h.AllocationCount(),
	}).Info("vFPGA context state")
}

// Close unmaps the windows, frees leaked allocations and releases the
// hardware context. Safe to call twice.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	leaked := make([]*Buffer, 0, len(h.allocations))
	for _, buf := range h.allocations {
		leaked = append(leaked, buf)
	}
	h.allocations = nil
	h.mu.Unlock()

	for _, buf := range leaked {
		h.log.WithField("addr", buf.Addr()).Warn("freeing leaked allocation")
		buf.release(h.df, h.ctxID)
	}

	err := h.wb.Unmap()
	err = multierr.Append(err, h.cnfg.Unmap())
	err = multierr.Append(err, h.ctrl.Unmap())
	err = multierr.Append(err, h.df.UnregisterCtx(h.ctxID))
	err = multierr.Append(err, h.df.Close())
	return err
}
