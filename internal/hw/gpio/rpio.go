package gpio

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/pickcam/internal/debug"
)

// RPiDriver drives BCM pins through go-rpio's memory-mapped registers.
type RPiDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	closed bool
}

// NewRPiRealDriver maps the GPIO registers. It needs /dev/gpiomem or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "open GPIO (are you running on a Raspberry Pi?)")
	}
	debug.Info("GPIO opened (go-rpio)")
	return &RPiDriver{modes: make(map[int]PinMode)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setupLocked(pin, mode)
}

func (r *RPiDriver) setupLocked(pin int, mode PinMode) error {
	if r.closed {
		return errors.Errorf("setup pin %d: driver closed", pin)
	}
	debug.GPIO("setup", pin, mode)
	switch mode {
	case Input:
		rpio.Pin(pin).Input()
	case Output:
		rpio.Pin(pin).Output()
	default:
		return errors.Errorf("unknown pin mode: %d", mode)
	}
	r.modes[pin] = mode
	return nil
}

// WritePin drives pin to level, switching it to output on first use.
func (r *RPiDriver) WritePin(pin int, level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode, ok := r.modes[pin]; !ok || mode != Output {
		if err := r.setupLocked(pin, Output); err != nil {
			return err
		}
	}
	debug.GPIO("write", pin, level)
	rpio.WritePin(rpio.Pin(pin), toRPi(level))
	return nil
}

// ReadPin samples pin, switching unknown pins to input first.
func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modes[pin]; !ok {
		if err := r.setupLocked(pin, Input); err != nil {
			return Low, err
		}
	}
	level := Low
	if rpio.ReadPin(rpio.Pin(pin)) == rpio.High {
		level = High
	}
	debug.GPIO("read", pin, level)
	return level, nil
}

// Close returns every pin it touched to input, leaving the camera remote
// and the flash relay undriven. Closing twice is a no-op.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for pin, mode := range r.modes {
		rpio.Pin(pin).Input()
		debug.GPIO("release", pin, mode)
	}
	return errors.Wrap(rpio.Close(), "close GPIO")
}

func toRPi(l Level) rpio.State {
	if l == High {
		return rpio.High
	}
	return rpio.Low
}
