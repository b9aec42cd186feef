package web

import (
	"sync"

	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/logic/capture"
	"github.com/cjeanneret/pickcam/internal/screen"
)

// ScreenEvent is published on the status stream for host level events.
type ScreenEvent struct {
	Event  string   `json:"event"`
	Assets []string `json:"assets,omitempty"`
}

// EventRelay is a screen.EventSink publishing to the status stream. OnClose
// and OnDone, when set, let the hosting process react as well.
type EventRelay struct {
	b       *StatusBroadcaster
	OnClose func()
	OnDone  func(images []*capture.Asset)
}

var _ screen.EventSink = (*EventRelay)(nil)

// NewEventRelay creates a relay publishing through b.
func NewEventRelay(b *StatusBroadcaster) *EventRelay {
	return &EventRelay{b: b}
}

func (e *EventRelay) Close() {
	e.publish(ScreenEvent{Event: "close"})
	if e.OnClose != nil {
		e.OnClose()
	}
}

func (e *EventRelay) StackViewTouched() {
	e.publish(ScreenEvent{Event: "stack"})
}

func (e *EventRelay) DoneWithImages(images []*capture.Asset) {
	ids := make([]string, len(images))
	for i, a := range images {
		ids[i] = a.ID
	}
	e.publish(ScreenEvent{Event: "done", Assets: ids})
	if e.OnDone != nil {
		e.OnDone(images)
	}
}

func (e *EventRelay) publish(evt ScreenEvent) {
	if err := e.b.Publish(KindEvent, evt); err != nil {
		debug.Error("publish screen event", err)
	}
}

// StatePublisher is a screen.Renderer that keeps the last view state and
// streams every new one.
type StatePublisher struct {
	b *StatusBroadcaster

	mu   sync.RWMutex
	last screen.ViewState
}

var _ screen.Renderer = (*StatePublisher)(nil)

// NewStatePublisher creates a publisher streaming through b.
func NewStatePublisher(b *StatusBroadcaster) *StatePublisher {
	return &StatePublisher{b: b}
}

// Render records v and publishes it.
func (p *StatePublisher) Render(v screen.ViewState) {
	p.mu.Lock()
	p.last = v
	p.mu.Unlock()
	if err := p.b.Publish(KindView, v); err != nil {
		debug.Error("publish view state", err)
	}
}

// Last returns the most recently rendered state.
func (p *StatePublisher) Last() screen.ViewState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}
