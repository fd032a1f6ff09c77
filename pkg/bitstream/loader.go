package bitstream

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openaccel/vfpga/pkg/driver"
	"github.com/openaccel/vfpga/pkg/sched"
)

// loadPriority is the device-lock priority for reconfiguration. Loading
// a region preempts normal task traffic.
const loadPriority uint8 = 6

// DefaultLoadTimeout bounds how long one section may take to program
const DefaultLoadTimeout = 5 * time.Second

// ErrLoadFailed is returned when the shell reports a reconfiguration error
var ErrLoadFailed = errors.New("reconfiguration failed")

// ErrLoadTimeout is returned when the shell never reports completion
var ErrLoadTimeout = errors.New("reconfiguration timed out")

// Allocator provides DMA-capable staging buffers for section data
type Allocator interface {
	Alloc(size uint64, hugePage bool) (uintptr, []byte, error)
	Free(addr uintptr) error
}

// Loader programs bitstream images into shell regions. Each section is
// staged in a DMA buffer and handed to the reconfiguration port under
// the exclusive device lock.
type Loader struct {
	alloc   Allocator
	regio   driver.RegisterIO
	lock    sched.DeviceLock
	timeout time.Duration
	log     *logrus.Entry
}

// LoaderOption mutates loader settings
type LoaderOption func(*Loader)

// WithLoadTimeout overrides the per-section completion wait
func WithLoadTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

// NewLoader creates a loader over a device's register window
func NewLoader(alloc Allocator, regio driver.RegisterIO, lock sched.DeviceLock, opts ...LoaderOption) *Loader {
	l := &Loader{
		alloc:   alloc,
		regio:   regio,
		lock:    lock,
		timeout: DefaultLoadTimeout,
		log:     logrus.WithField("component", "bitstream"),
	}
	for _, fn := range opts {
		fn(l)
	}
	return l
}

// Program loads every loadable section of an image
func (l *Loader) Program(ctx context.Context, img *Image) error {
	for i, s := range img.LoadableSections() {
		if err := l.loadSection(ctx, s); err != nil {
			return errors.Wrapf(err, "loading section %d (region %d)", i, s.TargetRegion)
		}
	}
	return nil
}

// ProgramRegion loads the image's section for one region
func (l *Loader) ProgramRegion(ctx context.Context, img *Image, region uint32) error {
	s, err := img.SectionForRegion(region)
	if err != nil {
		return err
	}
	return l.loadSection(ctx, *s)
}

func (l *Loader) loadSection(ctx context.Context, s Section) error {
	addr, buf, err := l.alloc.Alloc(uint64(len(s.Data)), false)
	if err != nil {
		return errors.Wrap(err, "allocating staging buffer")
	}
	defer l.alloc.Free(addr)
	copy(buf, s.Data)

	if err := l.lock.Lock(ctx, "bitstream", loadPriority); err != nil {
		return err
	}
	defer l.lock.Unlock()

	if err := l.regio.WriteReg(driver.RegReconfAddr, uint64(addr)); err != nil {
		return err
	}
	if err := l.regio.WriteReg(driver.RegReconfLen, uint64(len(s.Data))); err != nil {
		return err
	}
	ctl := uint64(driver.ReconfStart) |
		uint64(s.TargetRegion)<<driver.ReconfRegionShift |
		uint64(s.LoadOffset)<<driver.ReconfOffsetShift
	if err := l.regio.WriteReg(driver.RegReconfCtl, ctl); err != nil {
		return err
	}

	if err := l.waitDone(ctx); err != nil {
		return err
	}

	l.log.WithFields(logrus.Fields{
		"region": s.TargetRegion,
		"type":   s.Type.String(),
		"bytes":  len(s.Data),
	}).Info("region programmed")
	return nil
}

// waitDone polls the reconfiguration status register until the shell
// reports completion.
func (l *Loader) waitDone(ctx context.Context) error {
	deadline := time.Now().Add(l.timeout)
	for {
		stat, err := l.regio.ReadReg(driver.RegReconfStat)
		if err != nil {
			return err
		}
		if stat&driver.ReconfStatError != 0 {
			return ErrLoadFailed
		}
		if stat&driver.ReconfStatDone != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLoadTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
