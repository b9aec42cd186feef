package camera

import (
	"bytes"
	"context"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/debug"
)

// VirtualConfig describes a software camera stack.
type VirtualConfig struct {
	Devices        []Device
	Authorization  AuthorizationStatus
	GrantOnPrompt  bool          // answer given when authorization is requested
	CaptureLatency time.Duration // simulated exposure + processing time
	JPEGQuality    int
}

// DefaultVirtualDevices is a phone-like pair: a rear camera with flash and
// focus, and a front camera with neither.
func DefaultVirtualDevices() []Device {
	return []Device{
		{ID: "virtual-back", Name: "Back Camera", Position: Back, HasFlash: true, HasFocus: true},
		{ID: "virtual-front", Name: "Front Camera", Position: Front},
	}
}

// VirtualStats reports what the virtual hardware has been asked to do.
type VirtualStats struct {
	Prompts               int
	Captures              int
	MaxConcurrentCaptures int
	SessionsStarted       int
}

// Virtual is a Hardware that synthesizes JPEG frames. It is used when no
// real camera is attached and in tests; faults can be injected at runtime.
type Virtual struct {
	mu         sync.Mutex
	cfg        VirtualConfig
	status     AuthorizationStatus
	failAdd    map[string]bool
	captureErr error
	sessionErr error
	active     int
	stats      VirtualStats
	poi        map[string]Point
}

// NewVirtual creates a virtual camera stack.
func NewVirtual(cfg VirtualConfig) *Virtual {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}
	return &Virtual{
		cfg:     cfg,
		status:  cfg.Authorization,
		failAdd: make(map[string]bool),
		poi:     make(map[string]Point),
	}
}

// FailAddInput makes AddInput fail for the given device.
func (v *Virtual) FailAddInput(deviceID string, fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failAdd[deviceID] = fail
}

// FailCapture makes every capture return err; nil restores captures.
func (v *Virtual) FailCapture(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.captureErr = err
}

// FailSession makes session creation return err; nil restores it.
func (v *Virtual) FailSession(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessionErr = err
}

// SetCaptureLatency changes the simulated capture duration.
func (v *Virtual) SetCaptureLatency(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.CaptureLatency = d
}

// SetAuthorization overrides the permission state, e.g. after the user
// changed system settings.
func (v *Virtual) SetAuthorization(s AuthorizationStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = s
}

// PointOfInterest returns the last point of interest set on a device.
func (v *Virtual) PointOfInterest(deviceID string) (Point, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.poi[deviceID]
	return p, ok
}

// Stats returns a copy of the counters.
func (v *Virtual) Stats() VirtualStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

func (v *Virtual) AuthorizationStatus() AuthorizationStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *Virtual) RequestAuthorization(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.Prompts++
	if v.status == NotDetermined {
		if v.cfg.GrantOnPrompt {
			v.status = Authorized
		} else {
			v.status = Denied
		}
	}
	return v.status == Authorized, nil
}

func (v *Virtual) Devices() ([]Device, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Device, len(v.cfg.Devices))
	copy(out, v.cfg.Devices)
	return out, nil
}

func (v *Virtual) NewSession(preset Preset) (Session, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sessionErr != nil {
		return nil, v.sessionErr
	}
	return &virtualSession{
		hw:     v,
		preset: preset,
		flash:  make(map[string]FlashMode),
	}, nil
}

type virtualSession struct {
	hw          *Virtual
	preset      Preset
	configuring bool
	input       *Device
	running     bool
	flash       map[string]FlashMode
}

func (s *virtualSession) Preset() Preset { return s.preset }

func (s *virtualSession) BeginConfiguration() {
	s.configuring = true
}

func (s *virtualSession) CommitConfiguration() error {
	if !s.configuring {
		return errors.New("commit without begin")
	}
	s.configuring = false
	return nil
}

func (s *virtualSession) CanAddInput(d Device) bool {
	return s.input == nil
}

func (s *virtualSession) AddInput(d Device) error {
	s.hw.mu.Lock()
	fail := s.hw.failAdd[d.ID]
	s.hw.mu.Unlock()
	if fail || s.input != nil {
		return errors.Wrapf(ErrInputRejected, "add %s", d.ID)
	}
	dev := d
	s.input = &dev
	return nil
}

func (s *virtualSession) RemoveInput(d Device) {
	if s.input != nil && s.input.ID == d.ID {
		s.input = nil
	}
}

func (s *virtualSession) Input() (Device, bool) {
	if s.input == nil {
		return Device{}, false
	}
	return *s.input, true
}

func (s *virtualSession) Start() error {
	if s.input == nil {
		return errors.Wrap(ErrNoDevice, "start session")
	}
	s.running = true
	s.hw.mu.Lock()
	s.hw.stats.SessionsStarted++
	s.hw.mu.Unlock()
	return nil
}

func (s *virtualSession) Stop() {
	s.running = false
}

func (s *virtualSession) Running() bool { return s.running }

func (s *virtualSession) SetFlashMode(d Device, m FlashMode) error {
	if !d.HasFlash {
		return ErrUnsupported
	}
	s.flash[d.ID] = m
	return nil
}

func (s *virtualSession) SetPointOfInterest(d Device, p Point) error {
	if !d.HasFocus {
		return ErrUnsupported
	}
	s.hw.mu.Lock()
	defer s.hw.mu.Unlock()
	s.hw.poi[d.ID] = p.Clamp()
	return nil
}

func (s *virtualSession) Capture(ctx context.Context, o Orientation) (Photo, error) {
	if !s.running || s.input == nil {
		return Photo{}, ErrNotRunning
	}
	dev := *s.input

	s.hw.mu.Lock()
	s.hw.active++
	if s.hw.active > s.hw.stats.MaxConcurrentCaptures {
		s.hw.stats.MaxConcurrentCaptures = s.hw.active
	}
	latency := s.hw.cfg.CaptureLatency
	captureErr := s.hw.captureErr
	quality := s.hw.cfg.JPEGQuality
	s.hw.mu.Unlock()

	defer func() {
		s.hw.mu.Lock()
		s.hw.active--
		s.hw.mu.Unlock()
	}()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Photo{}, errors.Wrap(ErrCaptureTimeout, ctx.Err().Error())
		}
	}
	if captureErr != nil {
		return Photo{}, captureErr
	}

	mode := s.flash[dev.ID]
	w, h := s.preset.Resolution()
	img := imaging.New(w, h, frameColor(dev, mode))
	if o == Portrait || o == PortraitUpsideDown {
		img = imaging.Rotate270(img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return Photo{}, errors.Wrap(err, "encode frame")
	}

	s.hw.mu.Lock()
	s.hw.stats.Captures++
	s.hw.mu.Unlock()

	b := img.Bounds()
	debug.Trace("virtual capture %s %dx%d flash=%s", dev.ID, b.Dx(), b.Dy(), mode)
	return Photo{
		Data:        buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		Orientation: o,
		Flash:       mode,
	}, nil
}

// frameColor tints frames per device so captures are distinguishable.
func frameColor(d Device, m FlashMode) color.NRGBA {
	c := color.NRGBA{R: 40, G: 90, B: 160, A: 255}
	if d.Position == Front {
		c = color.NRGBA{R: 160, G: 90, B: 40, A: 255}
	}
	if m == FlashOn {
		c.R, c.G, c.B = c.R+80, c.G+80, c.B+80
	}
	return c
}
