// Package capture drives the camera capture session behind the camera
// screen: setup, input switching, flash, focus and still capture.
//
// Every hardware call runs on one serial queue owned by the Manager.
// Results are dispatched back to the UI context given in Options.Main, never
// delivered from the hardware goroutine directly, and never after Close.
package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/hw/camera"
	"github.com/cjeanneret/pickcam/internal/logic/devices"
	"github.com/cjeanneret/pickcam/internal/logic/queue"
)

const defaultCaptureTimeout = 10 * time.Second

// Options configures a Manager.
type Options struct {
	Preset          camera.Preset
	DefaultPosition camera.Position
	CaptureTimeout  time.Duration
	// Main is the UI context callbacks are delivered on. Nil delivers
	// inline on the hardware queue, which only suits command-line tools.
	Main queue.Dispatcher
	// Now stamps captured assets; defaults to time.Now.
	Now func() time.Time
}

// Manager owns one capture session for the lifetime of a camera screen.
type Manager struct {
	hw       camera.Hardware
	listener Listener
	opts     Options
	main     queue.Dispatcher
	hwq      *queue.Serial

	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool

	// Confined to the hardware queue.
	session   camera.Session
	directory *devices.Directory
	current   camera.Device

	// Published snapshot, readable from any goroutine.
	mu        sync.RWMutex
	state     State
	device    camera.Device
	hasDevice bool
	flash     camera.FlashMode
}

// NewManager creates a manager in the Uninitialized state. Nothing touches
// the hardware until Setup.
func NewManager(hw camera.Hardware, listener Listener, opts Options) *Manager {
	if listener == nil {
		listener = NopListener{}
	}
	if opts.Preset == "" {
		opts.Preset = camera.PresetPhoto
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = defaultCaptureTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	main := opts.Main
	if main == nil {
		main = queue.Inline
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		hw:       hw,
		listener: listener,
		opts:     opts,
		main:     main,
		hwq:      queue.NewSerial("camera.hardware"),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.alive.Store(true)
	return m
}

// State returns the last published state without queuing.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentDevice returns the last published input device.
func (m *Manager) CurrentDevice() (camera.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device, m.hasDevice
}

// FlashMode returns the stored flash mode, the one the next capture uses.
func (m *Manager) FlashMode() camera.FlashMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flash
}

// Devices lists the enumerated devices; empty before a successful setup.
// It runs on the hardware queue and blocks until answered or ctx ends.
func (m *Manager) Devices(ctx context.Context) ([]camera.Device, error) {
	var out []camera.Device
	reached := make(chan struct{})
	if _, err := m.hwq.Submit("list-devices", func() {
		if m.directory != nil {
			out = m.directory.All()
		}
		close(reached)
	}); err != nil {
		return nil, err
	}
	select {
	case <-reached:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Setup requests authorization when needed, then configures and starts the
// session off the calling goroutine. Failures end in NotAvailable. Setup is
// a no-op unless the manager is Uninitialized or Unavailable.
func (m *Manager) Setup() {
	m.mu.Lock()
	if m.state != Uninitialized && m.state != Unavailable {
		debug.Verbose("setup ignored in state %s", m.state)
		m.mu.Unlock()
		return
	}
	m.setStateLocked(Configuring)
	m.mu.Unlock()

	m.submit(RequestStart, m.start)
}

// SwitchCamera toggles between the front and back devices. Requests queue
// behind any pending capture or switch. completion always runs, after
// DidChangeInput, unless the manager is closed first.
func (m *Manager) SwitchCamera(completion func()) {
	if completion == nil {
		completion = func() {}
	}
	m.submit(RequestSwitch, func() { m.switchInput(completion) })
}

// Flash stores mode for the next capture and queues its application to
// the device. Devices without flash leave the stored mode untouched.
func (m *Manager) Flash(mode camera.FlashMode) {
	m.mu.Lock()
	if !m.hasDevice || !m.device.HasFlash {
		m.mu.Unlock()
		debug.Verbose("flash %s ignored: no flash on current device", mode)
		return
	}
	if m.flash == mode {
		m.mu.Unlock()
		return
	}
	m.flash = mode
	m.mu.Unlock()

	debug.Live("flash mode set to %s", mode)
	m.submit(RequestFlash, func() {
		if m.session != nil {
			m.applyFlash(m.session, m.current)
		}
	})
}

// Focus points autofocus and auto-exposure at p, a point of interest in
// [0,1]x[0,1]. Out of range coordinates are clamped.
func (m *Manager) Focus(p camera.Point) {
	p = p.Clamp()
	m.submit(RequestFocus, func() {
		if m.session == nil || !m.current.HasFocus {
			debug.Verbose("focus (%.2f, %.2f) ignored: no focus control", p.X, p.Y)
			return
		}
		if err := m.session.SetPointOfInterest(m.current, p); err != nil {
			debug.Error("set point of interest", err)
		}
	})
}

// TakePhoto captures a still through preview. Captures run one at a time in
// request order; completion gets nil when the capture fails.
func (m *Manager) TakePhoto(preview camera.Preview, location *Coordinate, completion func(*Asset)) {
	if completion == nil {
		completion = func(*Asset) {}
	}
	m.submit(RequestPhoto, func() { m.capture(preview, location, completion) })
}

// Close tears the session down. A request already running finishes but its
// result is discarded; queued requests are skipped. Close does not wait;
// use Done for that.
func (m *Manager) Close() {
	if !m.alive.CompareAndSwap(true, false) {
		return
	}
	m.mu.Lock()
	m.setStateLocked(Closed)
	m.mu.Unlock()

	m.cancel()
	_, _ = m.hwq.Submit(string(RequestStop), m.stop)
	m.hwq.CloseAsync()
}

// Done is closed once the hardware queue has drained after Close.
func (m *Manager) Done() <-chan struct{} {
	return m.hwq.Done()
}

func (m *Manager) submit(kind RequestKind, fn func()) {
	if !m.alive.Load() {
		debug.Verbose("%s dropped: camera screen closed", kind)
		return
	}
	_, err := m.hwq.Submit(string(kind), func() {
		if !m.alive.Load() {
			debug.Verbose("%s skipped: camera screen closed", kind)
			return
		}
		fn()
	})
	if err != nil {
		debug.Verbose("%s dropped: %v", kind, err)
	}
}

// deliver runs fn on the UI context if the manager is still alive there.
func (m *Manager) deliver(fn func()) {
	m.main.Dispatch(func() {
		if !m.alive.Load() {
			return
		}
		fn()
	})
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(s)
}

func (m *Manager) setStateLocked(s State) {
	if m.state == Closed || m.state == s {
		return
	}
	debug.Transition(m.state, s)
	m.state = s
}

func (m *Manager) publishDevice(d camera.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = d
	m.hasDevice = true
}

func (m *Manager) clearDevice() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = camera.Device{}
	m.hasDevice = false
}

func (m *Manager) start() {
	sess, dir, dev, err := m.configure()
	if err != nil {
		debug.Error("camera not available", err)
		m.setState(Unavailable)
		m.deliver(m.listener.NotAvailable)
		return
	}

	m.session, m.directory, m.current = sess, dir, dev
	m.publishDevice(dev)
	m.setState(Running)
	debug.Info("capture session started on %s (%s)", dev.Name, dev.Position)
	m.deliver(func() { m.listener.DidStart(sess) })
}

func (m *Manager) configure() (camera.Session, *devices.Directory, camera.Device, error) {
	var none camera.Device

	switch m.hw.AuthorizationStatus() {
	case camera.Denied:
		return nil, nil, none, camera.ErrAuthorizationDenied
	case camera.NotDetermined:
		debug.Live("requesting camera authorization")
		granted, err := m.hw.RequestAuthorization(m.ctx)
		if err != nil {
			return nil, nil, none, errors.Wrap(err, "request authorization")
		}
		if !granted {
			return nil, nil, none, camera.ErrAuthorizationDenied
		}
	}

	dir, err := devices.Enumerate(m.hw)
	if err != nil {
		return nil, nil, none, err
	}
	dev := dir.Default(m.opts.DefaultPosition)

	sess, err := m.hw.NewSession(m.opts.Preset)
	if err != nil {
		return nil, nil, none, errors.Wrap(err, "create session")
	}

	sess.BeginConfiguration()
	if !sess.CanAddInput(dev) {
		_ = sess.CommitConfiguration()
		return nil, nil, none, errors.Wrapf(camera.ErrInputRejected, "add %s", dev.ID)
	}
	if err := sess.AddInput(dev); err != nil {
		_ = sess.CommitConfiguration()
		return nil, nil, none, errors.Wrapf(err, "add %s", dev.ID)
	}
	if err := sess.CommitConfiguration(); err != nil {
		return nil, nil, none, errors.Wrap(err, "commit configuration")
	}

	m.applyFlash(sess, dev)

	if err := sess.Start(); err != nil {
		return nil, nil, none, errors.Wrap(err, "start session")
	}
	return sess, dir, dev, nil
}

func (m *Manager) switchInput(completion func()) {
	if m.session == nil || !m.session.Running() {
		debug.Error("switch camera", camera.ErrNotRunning)
		m.deliver(completion)
		return
	}

	m.setState(Switching)
	dev, err := m.swapInput(m.current.Position.Opposite())
	if err != nil {
		debug.Error("camera lost its input", err)
		m.stop()
		m.current = camera.Device{}
		m.clearDevice()
		m.setState(Unavailable)
		m.deliver(func() {
			m.listener.NotAvailable()
			completion()
		})
		return
	}
	m.publishDevice(dev)
	m.setState(Running)

	m.deliver(func() {
		m.listener.DidChangeInput(dev)
		completion()
	})
}

// swapInput replaces the session input inside one configuration block. On
// failure the previous input is put back and returned. An error means the
// session was left without any input.
func (m *Manager) swapInput(pos camera.Position) (camera.Device, error) {
	old := m.current
	next, err := m.directory.Device(pos)
	if err != nil {
		debug.Error("switch camera", err)
		return old, nil
	}

	s := m.session
	s.BeginConfiguration()
	s.RemoveInput(old)
	if !s.CanAddInput(next) {
		err = errors.Wrapf(camera.ErrInputRejected, "add %s", next.ID)
	} else {
		err = s.AddInput(next)
	}
	if err != nil {
		debug.Error("switch camera, restoring "+old.ID, err)
		if rerr := s.AddInput(old); rerr != nil {
			_ = s.CommitConfiguration()
			return camera.Device{}, errors.Wrapf(rerr, "restore %s", old.ID)
		}
		next = old
	}
	if cerr := s.CommitConfiguration(); cerr != nil {
		debug.Error("commit configuration", cerr)
	}

	m.current = next
	m.applyFlash(s, next)
	debug.Live("input is now %s (%s)", next.Name, next.Position)
	return next, nil
}

// applyFlash pushes the stored flash mode to dev when it has a flash.
func (m *Manager) applyFlash(s camera.Session, dev camera.Device) {
	if !dev.HasFlash {
		return
	}
	mode := m.FlashMode()
	if err := s.SetFlashMode(dev, mode); err != nil {
		debug.Error("set flash mode "+mode.String(), err)
	}
}

func (m *Manager) capture(preview camera.Preview, location *Coordinate, completion func(*Asset)) {
	if m.session == nil || !m.session.Running() {
		debug.Error("take photo", camera.ErrNotRunning)
		m.deliver(func() { completion(nil) })
		return
	}

	m.setState(Capturing)
	dev := m.current
	m.applyFlash(m.session, dev)

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.CaptureTimeout)
	photo, err := m.session.Capture(ctx, preview.Orientation)
	cancel()
	m.setState(Running)

	if err != nil {
		debug.Error("take photo", err)
		m.deliver(func() { completion(nil) })
		return
	}

	asset := &Asset{
		ID:         uuid.NewString(),
		Data:       photo.Data,
		Width:      photo.Width,
		Height:     photo.Height,
		DeviceID:   dev.ID,
		Position:   dev.Position,
		Flash:      photo.Flash,
		Location:   location,
		CapturedAt: m.opts.Now(),
	}
	debug.Shot(asset.ID, len(asset.Data))
	m.deliver(func() { completion(asset) })
}

func (m *Manager) stop() {
	if m.session != nil {
		m.session.Stop()
		m.session = nil
	}
	debug.Info("capture session stopped")
}
