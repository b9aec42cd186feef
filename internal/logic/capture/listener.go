package capture

import "github.com/cjeanneret/pickcam/internal/hw/camera"

// Listener receives session events on the UI context, in the order the
// underlying state changes happened.
type Listener interface {
	// DidStart fires once the session runs with its first input.
	DidStart(s camera.Session)
	// NotAvailable fires when setup failed: permission denied, no device,
	// or a configuration error.
	NotAvailable()
	// DidChangeInput fires after every switch request with the device now
	// attached, which is the previous one when the switch failed.
	DidChangeInput(d camera.Device)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) DidStart(camera.Session)      {}
func (NopListener) NotAvailable()                {}
func (NopListener) DidChangeInput(camera.Device) {}
