// Package location keeps the latest position fix used to tag captures.
package location

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/logic/capture"
)

// ErrStopped is returned when a fix arrives while tracking is off.
var ErrStopped = errors.New("location tracking stopped")

// Provider is what the camera screen needs from a location source.
type Provider interface {
	Start()
	Stop()
	Latest() *capture.Coordinate
}

// Config configures a Tracker.
type Config struct {
	// Fixed, when set, is reported until a real fix arrives. Useful for a
	// camera on a tripod that never moves.
	Fixed *capture.Coordinate
	// MaxAge drops fixes older than this; zero keeps them forever.
	MaxAge time.Duration
	Now    func() time.Time
}

// Tracker is a Provider fed through Update, e.g. from the web surface.
type Tracker struct {
	cfg Config

	mu      sync.RWMutex
	running bool
	latest  *capture.Coordinate
}

// NewTracker creates a stopped tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{cfg: cfg}
}

// Start begins accepting fixes.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	if t.latest == nil && t.cfg.Fixed != nil {
		c := *t.cfg.Fixed
		if c.Timestamp.IsZero() {
			c.Timestamp = t.cfg.Now()
		}
		t.latest = &c
	}
	debug.Live("location tracking started")
}

// Stop ignores further fixes. The last one stays available.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	debug.Live("location tracking stopped")
}

// Running reports whether fixes are accepted.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Update records a new fix.
func (t *Tracker) Update(c capture.Coordinate) error {
	if err := Validate(c); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrStopped
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = t.cfg.Now()
	}
	t.latest = &c
	debug.Verbose("location fix %.5f, %.5f (±%.0fm)", c.Latitude, c.Longitude, c.Accuracy)
	return nil
}

// Latest returns a copy of the newest fix, or nil when there is none or it
// is older than MaxAge.
func (t *Tracker) Latest() *capture.Coordinate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return nil
	}
	if t.cfg.MaxAge > 0 && t.cfg.Now().Sub(t.latest.Timestamp) > t.cfg.MaxAge {
		return nil
	}
	c := *t.latest
	return &c
}

// Validate checks that c is a plausible WGS84 position.
func Validate(c capture.Coordinate) error {
	switch {
	case math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude):
		return errors.New("coordinate is NaN")
	case c.Latitude < -90 || c.Latitude > 90:
		return errors.Errorf("latitude %f out of range", c.Latitude)
	case c.Longitude < -180 || c.Longitude > 180:
		return errors.Errorf("longitude %f out of range", c.Longitude)
	case c.Accuracy < 0:
		return errors.Errorf("negative accuracy %f", c.Accuracy)
	}
	return nil
}
