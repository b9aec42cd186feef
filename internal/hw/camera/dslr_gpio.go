package camera

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // register decoder for DecodeConfig
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/hw/gpio"
)

// DSLRConfig wires a tethered DSLR controlled via its 3-pin remote
// connector plus an optional flash relay:
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
// - FLASH: relay for an external flash (activate by setting to HIGH), 0 = none
//
// The body writes each shot to a tethering folder (ImportDir); the newest
// JPEG appearing there after the trigger is the captured photo.
type DSLRConfig struct {
	Name          string
	FocusPin      int
	ShutterPin    int
	FlashPin      int
	FocusDelay    time.Duration // time for autofocus
	ShutterDelay  time.Duration // shutter hold time
	ImportDir     string
	ImportTimeout time.Duration
	PollInterval  time.Duration
}

// DSLR is a single rear-facing camera behind GPIO lines.
type DSLR struct {
	gpio gpio.Driver
	cfg  DSLRConfig
}

// NewDSLR configures the pins and leaves every line inactive.
func NewDSLR(g gpio.Driver, cfg DSLRConfig) *DSLR {
	if cfg.Name == "" {
		cfg.Name = "Tethered DSLR"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = 5 * time.Second
	}

	_ = g.SetupPin(cfg.FocusPin, gpio.Output)
	_ = g.SetupPin(cfg.ShutterPin, gpio.Output)
	// By default, remote lines are HIGH (inactive)
	_ = g.WritePin(cfg.FocusPin, gpio.High)
	_ = g.WritePin(cfg.ShutterPin, gpio.High)
	if cfg.FlashPin > 0 {
		_ = g.SetupPin(cfg.FlashPin, gpio.Output)
		_ = g.WritePin(cfg.FlashPin, gpio.Low)
	}

	return &DSLR{gpio: g, cfg: cfg}
}

// Device describes the body as a capture device.
func (d *DSLR) Device() Device {
	return Device{
		ID:       "dslr-gpio",
		Name:     d.cfg.Name,
		Position: Back,
		HasFlash: d.cfg.FlashPin > 0,
		HasFocus: true,
	}
}

// AuthorizationStatus is always granted: GPIO access is checked when the
// driver opens.
func (d *DSLR) AuthorizationStatus() AuthorizationStatus { return Authorized }

func (d *DSLR) RequestAuthorization(ctx context.Context) (bool, error) {
	return true, ctx.Err()
}

func (d *DSLR) Devices() ([]Device, error) {
	return []Device{d.Device()}, nil
}

func (d *DSLR) NewSession(preset Preset) (Session, error) {
	if d.cfg.ImportDir != "" {
		if info, err := os.Stat(d.cfg.ImportDir); err != nil {
			return nil, errors.Wrap(err, "import dir")
		} else if !info.IsDir() {
			return nil, errors.Errorf("import dir %s is not a directory", d.cfg.ImportDir)
		}
	}
	return &dslrSession{body: d, preset: preset}, nil
}

type dslrSession struct {
	body        *DSLR
	preset      Preset
	configuring bool
	attached    bool
	running     bool
	flash       FlashMode
}

func (s *dslrSession) Preset() Preset { return s.preset }

func (s *dslrSession) BeginConfiguration() { s.configuring = true }

func (s *dslrSession) CommitConfiguration() error {
	s.configuring = false
	return nil
}

func (s *dslrSession) CanAddInput(d Device) bool {
	return !s.attached && d.ID == s.body.Device().ID
}

func (s *dslrSession) AddInput(d Device) error {
	if !s.CanAddInput(d) {
		return errors.Wrapf(ErrInputRejected, "add %s", d.ID)
	}
	s.attached = true
	return nil
}

func (s *dslrSession) RemoveInput(d Device) {
	if d.ID == s.body.Device().ID {
		s.attached = false
	}
}

func (s *dslrSession) Input() (Device, bool) {
	if !s.attached {
		return Device{}, false
	}
	return s.body.Device(), true
}

func (s *dslrSession) Start() error {
	if !s.attached {
		return errors.Wrap(ErrNoDevice, "start session")
	}
	s.running = true
	return nil
}

func (s *dslrSession) Stop() {
	s.running = false
	if s.body.cfg.FlashPin > 0 {
		_ = s.body.gpio.WritePin(s.body.cfg.FlashPin, gpio.Low)
	}
}

func (s *dslrSession) Running() bool { return s.running }

func (s *dslrSession) SetFlashMode(d Device, m FlashMode) error {
	if !d.HasFlash {
		return ErrUnsupported
	}
	s.flash = m
	return nil
}

// SetPointOfInterest cannot move the AF point over the remote connector;
// it runs a half-press autofocus cycle instead.
func (s *dslrSession) SetPointOfInterest(d Device, p Point) error {
	if !d.HasFocus {
		return ErrUnsupported
	}
	debug.Verbose("DSLR: half-press autofocus for point (%.2f, %.2f)", p.X, p.Y)
	return gpio.Hold(s.body.gpio, s.body.cfg.FocusPin, gpio.Low, s.body.cfg.FocusDelay)
}

// Capture triggers a photo and waits for it in the import directory.
// Sequence: FOCUS -> wait for AF -> (FLASH) SHUTTER -> hold -> release
func (s *dslrSession) Capture(ctx context.Context, o Orientation) (Photo, error) {
	if !s.running {
		return Photo{}, ErrNotRunning
	}
	before := jpegNames(s.body.cfg.ImportDir)
	if err := s.shoot(); err != nil {
		return Photo{}, errors.Wrap(err, "trigger shutter")
	}
	if s.body.cfg.ImportDir == "" {
		return Photo{}, errors.New("no import dir configured, photo stays on the card")
	}

	path, err := s.awaitImport(ctx, before)
	if err != nil {
		return Photo{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Photo{}, errors.Wrap(err, "read imported photo")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Photo{}, errors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	return Photo{
		Data:        data,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Orientation: o,
		Flash:       s.flash,
	}, nil
}

func (s *dslrSession) shoot() error {
	b := s.body
	debug.Verbose("DSLR: triggering shot (focus=%d, shutter=%d, flash=%s)", b.cfg.FocusPin, b.cfg.ShutterPin, s.flash)

	if err := b.gpio.WritePin(b.cfg.FocusPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(b.cfg.FocusDelay)

	fire := s.flash == FlashOn && b.cfg.FlashPin > 0
	if fire {
		if err := b.gpio.WritePin(b.cfg.FlashPin, gpio.High); err != nil {
			_ = b.gpio.WritePin(b.cfg.FocusPin, gpio.High)
			return err
		}
	}

	err := gpio.Hold(b.gpio, b.cfg.ShutterPin, gpio.Low, b.cfg.ShutterDelay)

	if fire {
		_ = b.gpio.WritePin(b.cfg.FlashPin, gpio.Low)
	}
	if relErr := b.gpio.WritePin(b.cfg.FocusPin, gpio.High); err == nil {
		err = relErr
	}
	return err
}

// awaitImport polls the import dir for a JPEG that was not there before.
func (s *dslrSession) awaitImport(ctx context.Context, before map[string]struct{}) (string, error) {
	b := s.body
	deadline := time.NewTimer(b.cfg.ImportTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if path, ok := newestJPEG(b.cfg.ImportDir, before); ok {
			return path, nil
		}
		select {
		case <-ctx.Done():
			return "", errors.Wrap(ErrCaptureTimeout, ctx.Err().Error())
		case <-deadline.C:
			return "", errors.Wrapf(ErrCaptureTimeout, "nothing imported into %s", b.cfg.ImportDir)
		case <-ticker.C:
		}
	}
}

func jpegNames(dir string) map[string]struct{} {
	names := make(map[string]struct{})
	if dir == "" {
		return names
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return names
	}
	for _, e := range entries {
		if !e.IsDir() && isJPEG(e.Name()) {
			names[e.Name()] = struct{}{}
		}
	}
	return names
}

func isJPEG(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}

// newestJPEG returns the most recently modified JPEG not listed in before.
// Empty files are skipped since the body may still be writing them.
func newestJPEG(dir string, before map[string]struct{}) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isJPEG(e.Name()) {
			continue
		}
		if _, seen := before[e.Name()]; seen {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	return best, best != ""
}
