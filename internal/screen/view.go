package screen

import (
	"github.com/cjeanneret/pickcam/internal/hw/camera"
	"github.com/cjeanneret/pickcam/internal/logic/capture"
)

// ViewState is everything a renderer needs to draw the camera screen.
type ViewState struct {
	Session   capture.State    `json:"session"`
	DeviceID  string           `json:"device_id,omitempty"`
	Position  *camera.Position `json:"position,omitempty"`
	FlashMode camera.FlashMode `json:"flash_mode"`

	PreviewReady   bool `json:"preview_ready"`
	FlashHidden    bool `json:"flash_hidden"`
	FocusHidden    bool `json:"focus_hidden"`
	ShutterEnabled bool `json:"shutter_enabled"`
	ShutterOverlay bool `json:"shutter_overlay"`
	RotateOverlay  bool `json:"rotate_overlay"`
	StackHidden    bool `json:"stack_hidden"`
	StackLoading   bool `json:"stack_loading"`
	DoneEnabled    bool `json:"done_enabled"`

	// Stack lists the most recent cart assets, newest first.
	Stack []string `json:"stack"`
	// Focus is the last touched point of interest.
	Focus *camera.Point `json:"focus,omitempty"`
}

func (v ViewState) clone() ViewState {
	out := v
	out.Stack = append([]string(nil), v.Stack...)
	if v.Position != nil {
		p := *v.Position
		out.Position = &p
	}
	if v.Focus != nil {
		f := *v.Focus
		out.Focus = &f
	}
	return out
}

// Renderer draws view states. It is called on the UI context.
type Renderer interface {
	Render(v ViewState)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(v ViewState)

// Render calls f(v).
func (f RendererFunc) Render(v ViewState) { f(v) }

// ViewListener receives touches on the preview, in view coordinates.
type ViewListener interface {
	DidTouch(x, y float64)
}

// EventSink receives the screen-level events the hosting picker handles.
type EventSink interface {
	Close()
	StackViewTouched()
	DoneWithImages(images []*capture.Asset)
}

// NopEventSink ignores every event; it is the default sink.
type NopEventSink struct{}

func (NopEventSink) Close()                          {}
func (NopEventSink) StackViewTouched()               {}
func (NopEventSink) DoneWithImages([]*capture.Asset) {}
