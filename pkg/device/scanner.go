package device

import (
	"strconv"
	"strings"

	"github.com/openaccel/vfpga/pkg/driver"
)

// DeviceInfo describes one discovered vFPGA region
type DeviceInfo struct {
	Path   string
	Region int
}

// Scan discovers the vFPGA region chardevs present on this host
func Scan() ([]DeviceInfo, error) {
	paths, err := driver.ScanDevices()
	if err != nil {
		return nil, err
	}
	infos := make([]DeviceInfo, 0, len(paths))
	for _, path := range paths {
		region := -1
		if idx := strings.LastIndex(path, "_"); idx >= 0 {
			if n, err := strconv.Atoi(path[idx+1:]); err == nil {
				region = n
			}
		}
		infos = append(infos, DeviceInfo{Path: path, Region: region})
	}
	return infos, nil
}
