package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openaccel/vfpga/pkg/bitstream"
	"github.com/openaccel/vfpga/pkg/conn"
	"github.com/openaccel/vfpga/pkg/device"
	"github.com/openaccel/vfpga/pkg/sched"
)

var loadRegion int32

var loadCmd = &cobra.Command{
	Use:   "load <device> <image>",
	Short: "Load a partial bitstream image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := bitstream.Parse(args[1])
		if err != nil {
			return err
		}

		h, err := device.OpenPath(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		lk, err := sched.ForDevice(cfg.LockDir, filepath.Base(args[0]),
			sched.WithTimeout(cfg.LockTimeout))
		if err != nil {
			return err
		}

		loader := bitstream.NewLoader(conn.DeviceAllocator{Handle: h}, h.Registers(), lk)
		if loadRegion >= 0 {
			err = loader.ProgramRegion(context.Background(), img, uint32(loadRegion))
		} else {
			err = loader.Program(context.Background(), img)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %s (%d section(s))\n", args[1], len(img.LoadableSections()))
		return nil
	},
}

func init() {
	loadCmd.Flags().Int32Var(&loadRegion, "region", -1, "load only the section for this region")
	rootCmd.AddCommand(loadCmd)
}
