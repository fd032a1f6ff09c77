package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openaccel/vfpga/pkg/capability"
	"github.com/openaccel/vfpga/pkg/device"
	"github.com/openaccel/vfpga/pkg/sched"
)

var regsCmd = &cobra.Command{
	Use:   "regs",
	Short: "Read and write shell registers",
}

var regsReadCmd = &cobra.Command{
	Use:   "read <device> <offset>",
	Short: "Read a config-window register",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := strconv.ParseUint(args[1], 0, 64)
		if err != nil {
			return fmt.Errorf("bad offset %q: %w", args[1], err)
		}
		return withLockedDevice(args[0], func(h *device.Handle) error {
			value, err := h.RegRead(offset)
			if err != nil {
				return err
			}
			fmt.Printf("0x%02x = 0x%016x\n", offset, value)
			return nil
		})
	},
}

var regsWriteCmd = &cobra.Command{
	Use:   "write <device> <offset> <value>",
	Short: "Write a config-window register",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := strconv.ParseUint(args[1], 0, 64)
		if err != nil {
			return fmt.Errorf("bad offset %q: %w", args[1], err)
		}
		value, err := strconv.ParseUint(args[2], 0, 64)
		if err != nil {
			return fmt.Errorf("bad value %q: %w", args[2], err)
		}
		return withLockedDevice(args[0], func(h *device.Handle) error {
			return h.RegWrite(offset, value)
		})
	},
}

// withLockedDevice opens a device and runs fn while holding its
// cross-process lock.
func withLockedDevice(path string, fn func(h *device.Handle) error) error {
	h, err := device.OpenPath(path)
	if err != nil {
		return err
	}
	defer h.Close()

	lk, err := sched.ForDevice(cfg.LockDir, filepath.Base(path),
		sched.WithTimeout(cfg.LockTimeout))
	if err != nil {
		return err
	}
	if err := lk.Lock(context.Background(), "vfpgactl", capability.OperatorPriority); err != nil {
		return err
	}
	defer lk.Unlock()

	return fn(h)
}

func init() {
	regsCmd.AddCommand(regsReadCmd)
	regsCmd.AddCommand(regsWriteCmd)
	rootCmd.AddCommand(regsCmd)
}
