package capability

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Record is one audited register access, allowed or denied
type Record struct {
	Time     time.Time
	Service  string
	Register string
	Op       string // "define", "read" or "write"
	Value    uint64
	Allowed  bool
	Reason   string
}

// AuditEmitter accepts audit records for register accesses. Emit failures
// must not block or fail the access itself.
type AuditEmitter interface {
	Emit(Record)
}

// NopEmitter discards all records. Used when no audit backend is configured.
type NopEmitter struct{}

// Emit discards the record
func (NopEmitter) Emit(Record) {}

// LogEmitter writes audit records to a logrus entry
type LogEmitter struct {
	log *logrus.Entry
}

// NewLogEmitter creates an emitter over the given logger. A nil logger
// falls back to the standard logrus logger.
func NewLogEmitter(log *logrus.Entry) *LogEmitter {
	if log == nil {
		log = logrus.WithField("component", "capability")
	}
	return &LogEmitter{log: log}
}

// Emit logs the record
func (e *LogEmitter) Emit(r Record) {
	entry := e.log.WithFields(logrus.Fields{
		"service":  r.Service,
		"register": r.Register,
		"op":       r.Op,
		"value":    r.Value,
		"allowed":  r.Allowed,
	})
	if r.Allowed {
		entry.Info("register access")
	} else {
		entry.WithField("reason", r.Reason).Warn("register access denied")
	}
}
