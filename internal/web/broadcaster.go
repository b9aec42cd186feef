package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Event kinds on the status stream.
const (
	KindLog   = "log"   // debug output
	KindView  = "view"  // screen.ViewState
	KindEvent = "event" // close, stack, done
)

const subscriberBuffer = 64

// StatusEvent is one message on the status stream.
type StatusEvent struct {
	Time  string          `json:"t"`
	Kind  string          `json:"k"`
	Level string          `json:"l,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusBroadcaster fans status events out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

// NewStatusBroadcaster creates a broadcaster with no subscribers.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of JSON encoded events and a cleanup function
// the caller must call when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Subscribers returns the number of connected clients.
func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a log line to every client.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// Publish sends v, JSON encoded, as an event of the given kind.
func (b *StatusBroadcaster) Publish(kind string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", kind)
	}
	b.send(StatusEvent{Kind: kind, Data: data})
	return nil
}

// send never blocks: slow clients miss messages once their buffer is full.
func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = b.now().Format(time.RFC3339Nano)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastWriter adapts the broadcaster to io.Writer so debug output can be
// teed into the status stream.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if msg := strings.TrimSpace(line); msg != "" {
			w.b.Broadcast(levelOf(msg), msg)
		}
	}
	return len(p), nil
}

// levelOf extracts the logrus level from a text formatted line.
func levelOf(line string) string {
	i := strings.Index(line, "level=")
	if i < 0 {
		return "info"
	}
	lvl := line[i+len("level="):]
	if j := strings.IndexByte(lvl, ' '); j >= 0 {
		lvl = lvl[:j]
	}
	return lvl
}
