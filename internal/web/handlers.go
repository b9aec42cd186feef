package web

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/hw/camera"
	"github.com/cjeanneret/pickcam/internal/logic/capture"
	"github.com/cjeanneret/pickcam/internal/logic/cart"
	"github.com/cjeanneret/pickcam/internal/logic/queue"
	"github.com/cjeanneret/pickcam/internal/screen"
)

const (
	mainTimeout      = 5 * time.Second
	maxBodyBytes     = 64 << 10
	heartbeatEvery   = 30 * time.Second
	defaultThumbSize = 160
)

// Screen is the set of controls the web surface can touch.
type Screen interface {
	screen.ViewListener
	ShutterTouched()
	FlashTouched()
	RotateTouched()
	StackTouched()
	DoneTouched()
	CloseTouched()
}

// DeviceLister lists the enumerated capture devices.
type DeviceLister interface {
	Devices(ctx context.Context) ([]camera.Device, error)
}

// LocationUpdater accepts position fixes.
type LocationUpdater interface {
	Update(c capture.Coordinate) error
}

// Options holds the handler dependencies. Location may be nil when
// captures are not tagged.
type Options struct {
	Main        queue.Dispatcher
	Screen      Screen
	Devices     DeviceLister
	Cart        *cart.Cart
	Location    LocationUpdater
	State       *StatePublisher
	Broadcaster *StatusBroadcaster

	ThumbnailSize    int
	ThumbnailQuality int
	ThumbnailTTL     time.Duration
}

// Handlers serves the camera screen over HTTP. Every control is run on the
// UI main loop, never on the request goroutine.
type Handlers struct {
	opts   Options
	thumbs *cache.Cache
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(opts Options) *Handlers {
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = defaultThumbSize
	}
	if opts.ThumbnailQuality <= 0 {
		opts.ThumbnailQuality = 75
	}
	if opts.ThumbnailTTL <= 0 {
		opts.ThumbnailTTL = 10 * time.Minute
	}
	return &Handlers{
		opts:   opts,
		thumbs: cache.New(opts.ThumbnailTTL, 2*opts.ThumbnailTTL),
	}
}

// onMain runs fn on the main loop and waits for it.
func (h *Handlers) onMain(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, mainTimeout)
	defer cancel()

	done := make(chan struct{})
	h.opts.Main.Dispatch(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "main loop did not answer")
	}
}

// control adapts a no-argument screen control to a handler answering with
// the view state.
func (h *Handlers) control(name string, fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.onMain(r.Context(), fn); err != nil {
			debug.Error("web: "+name, err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.writeState(w, http.StatusAccepted)
	}
}

// Shutter handles POST /shutter.
func (h *Handlers) Shutter(w http.ResponseWriter, r *http.Request) {
	h.control("shutter", h.opts.Screen.ShutterTouched)(w, r)
}

// Flash handles POST /flash.
func (h *Handlers) Flash(w http.ResponseWriter, r *http.Request) {
	h.control("flash", h.opts.Screen.FlashTouched)(w, r)
}

// Rotate handles POST /rotate.
func (h *Handlers) Rotate(w http.ResponseWriter, r *http.Request) {
	h.control("rotate", h.opts.Screen.RotateTouched)(w, r)
}

// Stack handles POST /stack.
func (h *Handlers) Stack(w http.ResponseWriter, r *http.Request) {
	h.control("stack", h.opts.Screen.StackTouched)(w, r)
}

// Done handles POST /done.
func (h *Handlers) Done(w http.ResponseWriter, r *http.Request) {
	h.control("done", h.opts.Screen.DoneTouched)(w, r)
}

// Close handles POST /close.
func (h *Handlers) Close(w http.ResponseWriter, r *http.Request) {
	h.control("close", h.opts.Screen.CloseTouched)(w, r)
}

// FocusRequest is a touch on the preview, in preview coordinates.
type FocusRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Focus handles POST /focus.
func (h *Handlers) Focus(w http.ResponseWriter, r *http.Request) {
	var req FocusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if math.IsNaN(req.X) || math.IsNaN(req.Y) || math.IsInf(req.X, 0) || math.IsInf(req.Y, 0) {
		writeError(w, http.StatusBadRequest, "x and y must be finite")
		return
	}
	h.control("focus", func() { h.opts.Screen.DidTouch(req.X, req.Y) })(w, r)
}

// Location handles POST /location.
func (h *Handlers) Location(w http.ResponseWriter, r *http.Request) {
	if h.opts.Location == nil {
		writeError(w, http.StatusNotFound, "location recording is disabled")
		return
	}
	var c capture.Coordinate
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.opts.Location.Update(c); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// State handles GET /state.
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, http.StatusOK)
}

// Devices handles GET /devices.
func (h *Handlers) Devices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), mainTimeout)
	defer cancel()
	list, err := h.opts.Devices.Devices(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if list == nil {
		list = []camera.Device{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Cart handles GET /cart.
func (h *Handlers) Cart(w http.ResponseWriter, r *http.Request) {
	images := h.opts.Cart.Images()
	if images == nil {
		images = []*capture.Asset{}
	}
	writeJSON(w, http.StatusOK, images)
}

// RemoveFromCart handles DELETE /cart/{id}.
func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var removed bool
	if err := h.onMain(r.Context(), func() { removed = h.opts.Cart.Remove(id) }); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "no such image")
		return
	}
	h.thumbs.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// Thumbnail handles GET /cart/{id}/thumbnail.
func (h *Handlers) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := h.opts.Cart.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such image")
		return
	}

	data, hit := h.thumbs.Get(id)
	if !hit {
		thumb, err := cart.Thumbnail(a, h.opts.ThumbnailSize, h.opts.ThumbnailQuality)
		if err != nil {
			debug.Error("web: thumbnail "+id, err)
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.thumbs.SetDefault(id, thumb)
		data = thumb
	}
	body := data.([]byte)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	_, _ = w.Write(body)
}

// StatusStream handles GET /status/stream for SSE.
func (h *Handlers) StatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.opts.Broadcaster.Subscribe()
	defer unsub()

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) writeState(w http.ResponseWriter, status int) {
	writeJSON(w, status, h.opts.State.Last())
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Error("web: encode response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
