// Package queue provides the serial execution contexts the camera screen
// runs on: one for hardware requests and one standing in for the UI loop.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/cjeanneret/pickcam/internal/debug"
)

// ErrClosed is returned when submitting to a closed queue.
var ErrClosed = errors.New("queue closed")

// Dispatcher runs fn later on its own context. It must not block.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// Inline runs every dispatched function immediately on the caller.
var Inline Dispatcher = DispatcherFunc(func(fn func()) { fn() })

type job struct {
	kind string
	seq  uint64
	fn   func()
}

// Serial executes submitted jobs one at a time, in submission order, on a
// single goroutine. Submission never blocks: the backlog is unbounded.
type Serial struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []job
	seq    uint64
	busy   bool
	closed bool

	done chan struct{}
}

// NewSerial starts a queue. Close must be called to stop its goroutine.
func NewSerial(name string) *Serial {
	q := &Serial{
		name: name,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Name returns the queue name used in logs.
func (q *Serial) Name() string { return q.name }

// Submit appends fn to the queue and returns its sequence number.
func (q *Serial) Submit(kind string, fn func()) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, errors.Wrapf(ErrClosed, "%s: submit %s", q.name, kind)
	}
	q.seq++
	q.jobs = append(q.jobs, job{kind: kind, seq: q.seq, fn: fn})
	q.cond.Signal()
	return q.seq, nil
}

// Dispatch implements Dispatcher. Functions dispatched after Close are
// dropped.
func (q *Serial) Dispatch(fn func()) {
	_, _ = q.Submit("dispatch", fn)
}

// Pending returns the number of jobs waiting or running.
func (q *Serial) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.jobs)
	if q.busy {
		n++
	}
	return n
}

// Sync blocks until every job submitted before the call has run.
func (q *Serial) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if _, err := q.Submit("sync", func() { close(reached) }); err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the backlog drain and waits for the
// worker goroutine to exit. Calling Close from a job of the same queue
// would deadlock; use CloseAsync there.
func (q *Serial) Close() {
	q.CloseAsync()
	<-q.done
}

// CloseAsync stops accepting jobs without waiting for the backlog.
func (q *Serial) CloseAsync() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Done is closed once the worker goroutine has exited.
func (q *Serial) Done() <-chan struct{} { return q.done }

func (q *Serial) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.jobs) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		q.busy = true
		q.mu.Unlock()

		debug.Request(q.name, j.kind, j.seq)
		q.execute(j)

		q.mu.Lock()
		q.busy = false
		q.mu.Unlock()
	}
}

// execute runs one job; a panicking job is logged and does not take the
// queue down.
func (q *Serial) execute(j job) {
	defer func() {
		if r := recover(); r != nil {
			debug.Error(q.name+": job panicked", fmt.Errorf("%s #%d: %v", j.kind, j.seq, r))
		}
	}()
	j.fn()
}
