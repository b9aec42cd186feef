package devices

import (
	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/hw/camera"
)

// ErrDeviceNotFound is returned when no device sits at the requested position.
var ErrDeviceNotFound = errors.New("device not found")

// Directory is the set of capture devices enumerated for one session setup.
// Lookups after Enumerate are stateless and safe for concurrent use.
type Directory struct {
	devices []camera.Device
}

// Enumerate lists the hardware's devices once.
func Enumerate(hw camera.Hardware) (*Directory, error) {
	list, err := hw.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate devices")
	}
	if len(list) == 0 {
		return nil, camera.ErrNoDevice
	}
	for _, d := range list {
		debug.Verbose("device %s (%s) position=%s flash=%t focus=%t", d.ID, d.Name, d.Position, d.HasFlash, d.HasFocus)
	}
	return &Directory{devices: list}, nil
}

// Device returns the first device at pos.
func (d *Directory) Device(pos camera.Position) (camera.Device, error) {
	for _, dev := range d.devices {
		if dev.Position == pos {
			return dev, nil
		}
	}
	return camera.Device{}, errors.Wrapf(ErrDeviceNotFound, "position %s", pos)
}

// Default returns the device at preferred, falling back to the first one
// enumerated.
func (d *Directory) Default(preferred camera.Position) camera.Device {
	if dev, err := d.Device(preferred); err == nil {
		return dev
	}
	return d.devices[0]
}

// All returns a copy of the enumerated devices.
func (d *Directory) All() []camera.Device {
	out := make([]camera.Device, len(d.devices))
	copy(out, d.devices)
	return out
}

// Len returns the number of devices.
func (d *Directory) Len() int { return len(d.devices) }
