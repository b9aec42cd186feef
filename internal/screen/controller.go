// Package screen is the camera screen controller: it wires the controls to
// the capture session manager and to the selection cart, and turns their
// callbacks into view states.
//
// A Controller is confined to the UI context it is given. Every method,
// including the listener callbacks, must run there.
package screen

import (
	"time"

	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/hw/camera"
	"github.com/cjeanneret/pickcam/internal/logic/capture"
	"github.com/cjeanneret/pickcam/internal/logic/cart"
	"github.com/cjeanneret/pickcam/internal/logic/location"
	"github.com/cjeanneret/pickcam/internal/logic/queue"
)

const (
	defaultStackSize     = 3
	defaultShutterBlink  = 100 * time.Millisecond
	defaultRotateFadeIn  = 300 * time.Millisecond
	defaultRotateFadeOut = 700 * time.Millisecond
)

// Options configures a Controller.
type Options struct {
	Hardware camera.Hardware
	Capture  capture.Options
	// Main is the UI context; required.
	Main queue.Dispatcher
	Cart *cart.Cart
	// Location is nil when captures are not tagged with a position.
	Location location.Provider
	Events   EventSink
	Renderer Renderer
	Preview  camera.Preview

	StackSize int
	// Overlay timings; zero picks the default, negative skips the wait.
	ShutterBlink  time.Duration
	RotateFadeIn  time.Duration
	RotateFadeOut time.Duration
}

// Controller drives the camera screen.
type Controller struct {
	opts    Options
	main    queue.Dispatcher
	manager *capture.Manager
	cart    *cart.Cart
	loc     location.Provider
	events  EventSink
	render  Renderer

	view          ViewState
	loaded        bool
	dismissed     bool
	transitioning bool
}

// New creates a controller and the session manager it owns. Nothing runs
// before Load.
func New(opts Options) *Controller {
	if opts.Events == nil {
		opts.Events = NopEventSink{}
	}
	if opts.Renderer == nil {
		opts.Renderer = RendererFunc(func(ViewState) {})
	}
	if opts.Cart == nil {
		opts.Cart = cart.New()
	}
	if opts.StackSize <= 0 {
		opts.StackSize = defaultStackSize
	}
	if opts.ShutterBlink == 0 {
		opts.ShutterBlink = defaultShutterBlink
	}
	if opts.RotateFadeIn == 0 {
		opts.RotateFadeIn = defaultRotateFadeIn
	}
	if opts.RotateFadeOut == 0 {
		opts.RotateFadeOut = defaultRotateFadeOut
	}

	c := &Controller{
		opts:   opts,
		main:   opts.Main,
		cart:   opts.Cart,
		loc:    opts.Location,
		events: opts.Events,
		render: opts.Renderer,
	}
	capOpts := opts.Capture
	capOpts.Main = opts.Main
	c.manager = capture.NewManager(opts.Hardware, c, capOpts)
	c.view = ViewState{
		ShutterEnabled: true,
		StackHidden:    true,
		FlashHidden:    true,
	}
	return c
}

// Manager exposes the owned session manager for read-only queries.
func (c *Controller) Manager() *capture.Manager { return c.manager }

// View returns a copy of the current view state.
func (c *Controller) View() ViewState { return c.view.clone() }

// --- Life cycle ---

// Load registers with the cart and starts the capture session.
func (c *Controller) Load() {
	if c.loaded || c.dismissed {
		return
	}
	c.loaded = true
	c.cart.AddListener(c)
	c.reloadStack()
	c.manager.Setup()
	c.refresh()
}

// Appear starts location updates.
func (c *Controller) Appear() {
	if c.loc != nil && !c.dismissed {
		c.loc.Start()
	}
}

// Disappear stops location updates.
func (c *Controller) Disappear() {
	if c.loc != nil {
		c.loc.Stop()
	}
}

// Dismiss tears the screen down. The session manager delivers nothing
// afterwards.
func (c *Controller) Dismiss() {
	if c.dismissed {
		return
	}
	c.dismissed = true
	c.Disappear()
	c.manager.Close()
	debug.Info("camera screen dismissed")
}

// Done is closed once the session manager has released the hardware.
func (c *Controller) Done() <-chan struct{} { return c.manager.Done() }

// --- Actions ---

// CloseTouched asks the host to close the picker.
func (c *Controller) CloseTouched() {
	c.events.Close()
}

// FlashTouched cycles the flash mode: off, on, auto. The control stays
// hidden until a device with flash is reported.
func (c *Controller) FlashTouched() {
	if c.view.FlashHidden {
		return
	}
	c.manager.Flash(c.manager.FlashMode().Next())
	c.refresh()
}

// RotateTouched switches between the front and back cameras behind an
// overlay. Touches during a switch are ignored.
func (c *Controller) RotateTouched() {
	if c.transitioning || c.dismissed {
		return
	}
	c.transitioning = true
	c.runSteps([]func(done func()){
		func(done func()) {
			c.view.RotateOverlay = true
			c.refresh()
			c.after(c.opts.RotateFadeIn, done)
		},
		func(done func()) {
			c.manager.SwitchCamera(done)
		},
		func(done func()) {
			c.after(c.opts.RotateFadeOut, done)
		},
	}, func() {
		c.transitioning = false
		c.view.RotateOverlay = false
		c.refresh()
	})
}

// StackTouched opens the cart through the host.
func (c *Controller) StackTouched() {
	c.events.StackViewTouched()
}

// ShutterTouched takes a photo and adds it to the cart. The shutter stays
// disabled until the capture completes.
func (c *Controller) ShutterTouched() {
	if !c.view.PreviewReady || !c.view.ShutterEnabled || c.dismissed {
		return
	}
	c.view.ShutterEnabled = false
	c.view.StackLoading = true
	c.blinkShutter()

	var loc *capture.Coordinate
	if c.loc != nil {
		loc = c.loc.Latest()
	}
	c.manager.TakePhoto(c.opts.Preview, loc, func(a *capture.Asset) {
		c.view.ShutterEnabled = true
		c.view.StackLoading = false
		if a != nil {
			c.cart.Add(a, true)
		}
		c.refresh()
	})
	c.refresh()
}

// DoneTouched hands the selected images to the host.
func (c *Controller) DoneTouched() {
	if !c.view.DoneEnabled {
		return
	}
	c.events.DoneWithImages(c.cart.Images())
}

func (c *Controller) blinkShutter() {
	c.runSteps([]func(done func()){
		func(done func()) {
			c.view.ShutterOverlay = true
			c.after(c.opts.ShutterBlink, done)
		},
	}, func() {
		c.view.ShutterOverlay = false
		c.refresh()
	})
}

// --- capture.Listener ---

// DidStart shows the preview for the running session.
func (c *Controller) DidStart(camera.Session) {
	c.view.PreviewReady = true
	c.view.FocusHidden = false
	if d, ok := c.manager.CurrentDevice(); ok {
		c.showDevice(d)
	}
	c.refresh()
}

// NotAvailable hides the focus indicator; the camera cannot be used.
func (c *Controller) NotAvailable() {
	c.view.PreviewReady = false
	c.view.FocusHidden = true
	c.view.FlashHidden = true
	c.refresh()
}

// DidChangeInput updates the flash control for the new device.
func (c *Controller) DidChangeInput(d camera.Device) {
	c.showDevice(d)
	c.refresh()
}

func (c *Controller) showDevice(d camera.Device) {
	c.view.DeviceID = d.ID
	pos := d.Position
	c.view.Position = &pos
	c.view.FlashHidden = !d.HasFlash
}

// --- ViewListener ---

// DidTouch focuses on the touched preview point.
func (c *Controller) DidTouch(x, y float64) {
	if c.view.FocusHidden || !c.view.PreviewReady {
		return
	}
	c.view.Focus = &camera.Point{X: x, Y: y}
	c.manager.Focus(c.opts.Preview.Normalize(x, y))
	c.refresh()
}

// --- cart.Listener ---

func (c *Controller) DidAdd(*cart.Cart, *capture.Asset, bool) {
	c.reloadStack()
	c.refresh()
}

func (c *Controller) DidRemove(*cart.Cart, *capture.Asset) {
	c.reloadStack()
	c.refresh()
}

func (c *Controller) DidReload(*cart.Cart) {
	c.reloadStack()
	c.refresh()
}

func (c *Controller) reloadStack() {
	recent := c.cart.Recent(c.opts.StackSize)
	c.view.Stack = c.view.Stack[:0]
	for _, a := range recent {
		c.view.Stack = append(c.view.Stack, a.ID)
	}
}

// --- View ---

func (c *Controller) refresh() {
	empty := c.cart.Len() == 0
	c.view.DoneEnabled = !empty
	c.view.StackHidden = empty
	c.view.Session = c.manager.State()
	c.view.FlashMode = c.manager.FlashMode()
	c.render.Render(c.view.clone())
}

// runSteps runs each step after the previous one called done, then finish.
func (c *Controller) runSteps(steps []func(done func()), finish func()) {
	if len(steps) == 0 {
		finish()
		return
	}
	steps[0](func() {
		c.runSteps(steps[1:], finish)
	})
}

// after calls fn on the UI context once d elapsed.
func (c *Controller) after(d time.Duration, fn func()) {
	if d <= 0 {
		c.main.Dispatch(fn)
		return
	}
	time.AfterFunc(d, func() { c.main.Dispatch(fn) })
}
