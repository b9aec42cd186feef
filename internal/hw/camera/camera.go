package camera

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrAuthorizationDenied is returned when camera usage was refused.
	ErrAuthorizationDenied = errors.New("camera authorization denied")
	// ErrNoDevice is returned when no capture device is present.
	ErrNoDevice = errors.New("no capture device available")
	// ErrInputRejected is returned when a session refuses a device input.
	ErrInputRejected = errors.New("session rejected device input")
	// ErrNotRunning is returned when capturing on a stopped session.
	ErrNotRunning = errors.New("capture session is not running")
	// ErrCaptureTimeout is returned when the hardware never produced a photo.
	ErrCaptureTimeout = errors.New("capture timed out")
	// ErrUnsupported is returned for flash/focus on an incapable device.
	ErrUnsupported = errors.New("operation not supported by device")
)

// Position tells which side of the body a camera faces.
type Position int

const (
	Back Position = iota
	Front
)

func (p Position) String() string {
	if p == Front {
		return "front"
	}
	return "back"
}

// Opposite returns the position a camera rotation switches to.
func (p Position) Opposite() Position {
	if p == Front {
		return Back
	}
	return Front
}

// ParsePosition accepts "back"/"rear" and "front".
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "back", "rear", "":
		return Back, nil
	case "front":
		return Front, nil
	default:
		return Back, errors.Errorf("unknown camera position %q", s)
	}
}

// MarshalText lets positions appear by name in JSON.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(b []byte) error {
	v, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Device is an immutable snapshot of a physical camera.
type Device struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
	HasFlash bool     `json:"has_flash"`
	HasFocus bool     `json:"has_focus"`
}

// FlashMode is applied to a device before still capture.
type FlashMode int

const (
	FlashOff FlashMode = iota
	FlashOn
	FlashAuto
)

func (m FlashMode) String() string {
	switch m {
	case FlashOn:
		return "on"
	case FlashAuto:
		return "auto"
	default:
		return "off"
	}
}

// Next cycles off -> on -> auto -> off, the order of the flash button.
func (m FlashMode) Next() FlashMode {
	return (m + 1) % 3
}

// ParseFlashMode accepts "off", "on" and "auto".
func ParseFlashMode(s string) (FlashMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return FlashOff, nil
	case "on":
		return FlashOn, nil
	case "auto":
		return FlashAuto, nil
	default:
		return FlashOff, errors.Errorf("unknown flash mode %q", s)
	}
}

// MarshalText lets flash modes appear by name in JSON.
func (m FlashMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *FlashMode) UnmarshalText(b []byte) error {
	v, err := ParseFlashMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// AuthorizationStatus mirrors the OS camera permission.
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Authorized
	Denied
)

func (s AuthorizationStatus) String() string {
	switch s {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return "not_determined"
	}
}

// Point is a point of interest in normalized device space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp keeps the point inside [0,1]x[0,1].
func (p Point) Clamp() Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0.5
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Preset selects the session output resolution.
type Preset string

const (
	PresetPhoto  Preset = "photo"
	PresetHigh   Preset = "high"
	PresetMedium Preset = "medium"
)

// Resolution returns the landscape frame size produced for the preset.
func (p Preset) Resolution() (width, height int) {
	switch p {
	case PresetHigh:
		return 1280, 720
	case PresetMedium:
		return 480, 360
	default:
		return 640, 480
	}
}

// Photo is what a session hands back for one still capture.
type Photo struct {
	Data        []byte
	Width       int
	Height      int
	Orientation Orientation
	Flash       FlashMode
}

// Hardware is the platform camera stack.
type Hardware interface {
	AuthorizationStatus() AuthorizationStatus
	// RequestAuthorization may wait on the user for an unbounded time.
	RequestAuthorization(ctx context.Context) (bool, error)
	Devices() ([]Device, error)
	NewSession(preset Preset) (Session, error)
}

// Session is a live capture pipeline. Implementations are not required to
// be safe for concurrent use; callers confine a session to one goroutine.
type Session interface {
	Preset() Preset
	BeginConfiguration()
	CommitConfiguration() error
	CanAddInput(d Device) bool
	AddInput(d Device) error
	RemoveInput(d Device)
	// Input returns the attached device, if any.
	Input() (Device, bool)
	Start() error
	Stop()
	Running() bool
	SetFlashMode(d Device, m FlashMode) error
	SetPointOfInterest(d Device, p Point) error
	Capture(ctx context.Context, o Orientation) (Photo, error)
}
