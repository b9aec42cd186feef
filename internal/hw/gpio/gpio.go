package gpio

import (
	"sync"
	"time"

	"github.com/cjeanneret/pickcam/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// The DSLR backend drives its focus, shutter and flash relay lines
// through it, either on a Raspberry Pi or through MockDriver on a PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver keeps pin levels in memory and logs every access.
// Used for development on PC or testing.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	drv, err := NewRPiRealDriver()
	if err != nil {
		return nil, err
	}
	return drv, nil
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("setup", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("write", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("read", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

// Hold drives pin to active, waits for d, then drives it back to the
// opposite level. The line is released even if the wait is skipped.
func Hold(drv Driver, pin int, active Level, d time.Duration) error {
	if err := drv.WritePin(pin, active); err != nil {
		return err
	}
	if d > 0 {
		time.Sleep(d)
	}
	return drv.WritePin(pin, !active)
}
