// Package config loads runtime configuration for the vFPGA service from
// YAML files. Later files override earlier ones, so a deployment can
// layer site overrides on top of the shipped defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"

	"github.com/openaccel/vfpga/pkg/engine"
	"github.com/openaccel/vfpga/pkg/sched"
)

// Config holds the tunables of the host runtime
type Config struct {
	// DeviceDir is where the char devices live
	DeviceDir string `yaml:"device_dir"`
	// LockDir holds the cross-process device lock files
	LockDir string `yaml:"lock_dir"`
	// LockTimeout bounds waits for the exclusive device lock
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// TaskQueueDepth bounds each engine's pending task queue
	TaskQueueDepth int `yaml:"task_queue_depth" validate:"min=1"`
	// QPBase and QPRange bound queue-pair number allocation
	QPBase  uint32 `yaml:"qp_base"`
	QPRange uint32 `yaml:"qp_range" validate:"min=1"`
	// HandshakeTimeout bounds connection setup and sync waits
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// HugePages backs DMA buffers with 2M pages when set
	HugePages bool `yaml:"huge_pages"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		DeviceDir:        "/dev",
		LockDir:          "/tmp",
		LockTimeout:      sched.DefaultLockTimeout,
		TaskQueueDepth:   engine.DefaultQueueDepth,
		QPBase:           0x100,
		QPRange:          256,
		HandshakeTimeout: 10 * time.Second,
	}
}

// ValidationError reports which fields failed validation
type ValidationError struct {
	errorMap validator.ErrorMap
}

// ErrForField returns the validation error for the given field
func (e ValidationError) ErrForField(name string) error {
	return e.errorMap[name]
}

// Error returns the error string from a ValidationError
func (e ValidationError) Error() string {
	var w bytes.Buffer

	fmt.Fprintf(&w, "validation failed")
	for f, err := range e.errorMap {
		fmt.Fprintf(&w, "   %s: %v\n", f, err)
	}

	return w.String()
}

// Load parses the given files in order on top of the defaults, merging
// them together, and validates the result.
func Load(files ...string) (Config, error) {
	cfg := Default()
	for _, fname := range files {
		data, err := os.ReadFile(fname)
		if err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", fname)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parsing config %s", fname)
		}
	}

	if err := validator.Validate(&cfg); err != nil {
		return Config{}, ValidationError{errorMap: err.(validator.ErrorMap)}
	}
	if cfg.LockTimeout < 0 || cfg.HandshakeTimeout < 0 {
		return Config{}, errors.New("timeouts must not be negative")
	}
	return cfg, nil
}
