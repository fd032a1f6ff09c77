package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openaccel/vfpga/pkg/device"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for vFPGA devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := device.Scan()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No vFPGA devices found")
			return nil
		}

		fmt.Printf("Found %d vFPGA device(s):\n", len(devices))
		for _, dev := range devices {
			fmt.Printf("  [%d] %s\n", dev.Region, dev.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
