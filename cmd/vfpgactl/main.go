package main

import "github.com/openaccel/vfpga/cmd/vfpgactl/cmd"

func main() {
	cmd.Execute()
}
