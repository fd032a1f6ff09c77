package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openaccel/vfpga/pkg/device"
)

var infoDebug bool

var infoCmd = &cobra.Command{
	Use:   "info <device>",
	Short: "Show shell configuration for a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := device.OpenPath(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		shell := h.ShellConfig()
		fmt.Printf("Device: %s\n", h.Path())
		fmt.Printf("  Context ID: %d\n", h.CtxID())
		fmt.Printf("  Regions: %d\n", shell.NRegions)
		fmt.Printf("  DMA Channels: %d\n", shell.NDmaChannels)
		fmt.Printf("  QPN Base: 0x%x\n", shell.QpnBase)
		fmt.Printf("  QPN Range: %d\n", shell.QpnRange)
		fmt.Printf("  Node ID: %d\n", shell.NodeID)
		fmt.Printf("  RDMA: %v\n", shell.EnableRdma)
		fmt.Printf("  AVX: %v\n", shell.EnableAvx)
		fmt.Printf("  Writeback: %v (%d bytes)\n", shell.EnableWb, shell.WritebackSize)

		if infoDebug {
			h.PrintDebug()
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoDebug, "debug", false, "dump raw register state")
	rootCmd.AddCommand(infoCmd)
}
