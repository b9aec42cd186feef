package capture

import (
	"time"

	"github.com/cjeanneret/pickcam/internal/hw/camera"
)

// Coordinate is an opaque geolocation attached to captured assets.
type Coordinate struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Asset is a captured still. The receiver of a capture completion owns it.
type Asset struct {
	ID         string           `json:"id"`
	Data       []byte           `json:"-"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	DeviceID   string           `json:"device_id"`
	Position   camera.Position  `json:"position"`
	Flash      camera.FlashMode `json:"flash"`
	Location   *Coordinate      `json:"location,omitempty"`
	CapturedAt time.Time        `json:"captured_at"`
}
