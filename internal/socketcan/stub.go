//go:build !linux

package socketcan

import (
	"errors"

	"github.com/kstaniek/go-drive-bridge/internal/can"
)

var errUnsupported = errors.New("socketcan unsupported on this platform")

// Device exists so non-linux builds compile; every call fails.
type Device struct{}

func Open(iface string) (*Device, error)        { return nil, errUnsupported }
func SetLinkUp(iface string) error              { return errUnsupported }
func (d *Device) Close() error                  { return errUnsupported }
func (d *Device) ReadFrame(fr *can.Frame) error { return errUnsupported }
func (d *Device) WriteFrame(fr can.Frame) error { return errUnsupported }
