// Package cmd implements the vfpgactl CLI commands.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openaccel/vfpga/pkg/config"
)

// Version is set at build time
var Version = "dev"

var (
	configFiles []string
	verbose     bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vfpgactl",
	Short: "Control CLI for vFPGA devices",
	Long: `vfpgactl manages vFPGA shell devices.

It provides commands to scan for devices, inspect shell configuration,
read and write shell registers, load partial bitstream images and
benchmark the task path.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		var err error
		cfg, err = config.Load(configFiles...)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&configFiles, "config", nil,
		"config files, later files override earlier ones")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
