//go:build !windows

package hidlink

import (
	"context"
	"time"

	"github.com/sstallion/go-hid"
)

// HidapiLink is a Link backed by libhidapi via sstallion/go-hid, the same
// backend the teacher CTAPHID implementation uses for its device package.
type HidapiLink struct {
	dev *hid.Device
}

// OpenPath opens the HID device at path.
func OpenPath(path string) (*HidapiLink, error) {
	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, err
	}
	return &HidapiLink{dev: dev}, nil
}

func (l *HidapiLink) Write(report []byte) (int, error) {
	return l.dev.Write(report)
}

func (l *HidapiLink) Read(report []byte, timeout time.Duration) (int, error) {
	return l.dev.ReadWithTimeout(report, timeout)
}

func (l *HidapiLink) Close() error {
	return l.dev.Close()
}

// HidapiLocator is a RetryLocator wired to hidapi's bus enumeration.
func HidapiLocator() *RetryLocator {
	return &RetryLocator{Enumerate: enumerateHidapi}
}

// DefaultLocator returns this platform's natural Locator: hidapi's direct
// bus enumeration everywhere except Windows builds that go through the
// named-pipe relay instead.
func DefaultLocator(_ context.Context) *RetryLocator {
	return HidapiLocator()
}

func enumerateHidapi(vid, pid uint16) ([]DeviceInfo, error) {
	var infos []DeviceInfo
	err := hid.Enumerate(vid, pid, func(info *hid.DeviceInfo) error {
		infos = append(infos, DeviceInfo{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
			UsagePage:    info.UsagePage,
			Usage:        info.Usage,
		})
		return nil
	})
	return infos, err
}

// HidapiListFIDODevices lists every hidapi-visible FIDO device on the bus.
func HidapiListFIDODevices(_ context.Context) ([]DeviceInfo, error) {
	return ListFIDODevices(enumerateHidapi)
}
