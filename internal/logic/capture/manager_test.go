package capture

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/pickcam/internal/hw/camera"
	"github.com/cjeanneret/pickcam/internal/logic/queue"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) DidStart(s camera.Session) {
	d, _ := s.Input()
	r.add("start:%s", d.ID)
}
func (r *recorder) NotAvailable()                  { r.add("unavailable") }
func (r *recorder) DidChangeInput(d camera.Device) { r.add("input:%s", d.ID) }

type fixture struct {
	hw   *camera.Virtual
	main *queue.Serial
	rec  *recorder
	m    *Manager
}

func newFixture(t *testing.T, cfg camera.VirtualConfig) *fixture {
	t.Helper()
	if cfg.Devices == nil {
		cfg.Devices = camera.DefaultVirtualDevices()
	}
	t.Cleanup(leaktest.Check(t))
	f := &fixture{
		hw:   camera.NewVirtual(cfg),
		main: queue.NewSerial("main"),
		rec:  &recorder{},
	}
	f.m = NewManager(f.hw, f.rec, Options{Main: f.main, DefaultPosition: camera.Back})
	t.Cleanup(func() {
		f.m.Close()
		<-f.m.Done()
		f.main.Close()
	})
	return f
}

// settle waits until both queues ran everything submitted so far.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.m.hwq.Sync(ctx))
	require.NoError(t, f.main.Sync(ctx))
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.m.Setup()
	f.settle(t)
	require.Equal(t, Running, f.m.State())
}

func TestSetupAuthorized(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})

	assert.Equal(t, Uninitialized, f.m.State())
	f.start(t)

	assert.Equal(t, []string{"start:virtual-back"}, f.rec.list())
	dev, ok := f.m.CurrentDevice()
	require.True(t, ok)
	assert.Equal(t, camera.Back, dev.Position)
	assert.Equal(t, 0, f.hw.Stats().Prompts)
	assert.Equal(t, 1, f.hw.Stats().SessionsStarted)
}

func TestSetupPromptGranted(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.NotDetermined, GrantOnPrompt: true})

	f.start(t)
	assert.Equal(t, 1, f.hw.Stats().Prompts)
	assert.Equal(t, []string{"start:virtual-back"}, f.rec.list())
}

func TestSetupPromptRefused(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.NotDetermined})

	f.m.Setup()
	f.settle(t)

	assert.Equal(t, Unavailable, f.m.State())
	assert.Equal(t, []string{"unavailable"}, f.rec.list())
	assert.Equal(t, 1, f.hw.Stats().Prompts)
}

func TestSetupDenied(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Denied})

	f.m.Setup()
	f.settle(t)

	assert.Equal(t, Unavailable, f.m.State())
	assert.Equal(t, []string{"unavailable"}, f.rec.list())
	assert.Equal(t, 0, f.hw.Stats().Prompts, "denied permission must not prompt again")
}

func TestSetupNoDevice(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized, Devices: []camera.Device{}})

	f.m.Setup()
	f.settle(t)

	assert.Equal(t, Unavailable, f.m.State())
	assert.Equal(t, []string{"unavailable"}, f.rec.list())
	_, ok := f.m.CurrentDevice()
	assert.False(t, ok)
}

func TestSetupSessionFailureThenRetry(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	f.hw.FailSession(errors.New("busy"))

	f.m.Setup()
	f.settle(t)
	assert.Equal(t, Unavailable, f.m.State())

	f.hw.FailSession(nil)
	f.start(t)
	assert.Equal(t, []string{"unavailable", "start:virtual-back"}, f.rec.list())
}

func TestSetupTwiceIsIgnored(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})

	f.m.Setup()
	f.m.Setup()
	f.settle(t)

	assert.Equal(t, []string{"start:virtual-back"}, f.rec.list())
	assert.Equal(t, 1, f.hw.Stats().SessionsStarted)
}

func TestDefaultPositionFallsBack(t *testing.T) {
	front := camera.Device{ID: "only-front", Position: camera.Front}
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized, Devices: []camera.Device{front}})

	f.start(t)
	dev, _ := f.m.CurrentDevice()
	assert.Equal(t, "only-front", dev.ID)
}

func TestSwitchCamera(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	f.start(t)

	f.m.SwitchCamera(func() { f.rec.add("done") })
	f.m.SwitchCamera(func() { f.rec.add("done") })
	f.settle(t)

	assert.Equal(t, []string{
		"start:virtual-back",
		"input:virtual-front", "done",
		"input:virtual-back", "done",
	}, f.rec.list())
	assert.Equal(t, Running, f.m.State())
}

func TestSwitchCameraRestoresOnFailure(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	f.start(t)
	f.hw.FailAddInput("virtual-front", true)

	f.m.SwitchCamera(nil)
	f.settle(t)

	assert.Equal(t, []string{"start:virtual-back", "input:virtual-back"}, f.rec.list())
	dev, _ := f.m.CurrentDevice()
	assert.Equal(t, "virtual-back", dev.ID)
	assert.Equal(t, Running, f.m.State())

	// The restored input still captures.
	done := make(chan *Asset, 1)
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) { done <- a })
	f.settle(t)
	require.NotNil(t, <-done)
}

func TestSwitchCameraMissingOpposite(t *testing.T) {
	back := camera.Device{ID: "only-back", Position: camera.Back}
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized, Devices: []camera.Device{back}})
	f.start(t)

	f.m.SwitchCamera(nil)
	f.settle(t)
	assert.Equal(t, []string{"start:only-back", "input:only-back"}, f.rec.list())
}

func TestSwitchCameraBeforeSetup(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})

	f.m.SwitchCamera(func() { f.rec.add("done") })
	f.settle(t)

	assert.Equal(t, []string{"done"}, f.rec.list())
	assert.Equal(t, Uninitialized, f.m.State())
}

func TestTakePhoto(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.m.opts.Now = func() time.Time { return now }
	f.start(t)

	loc := &Coordinate{Latitude: 46.2, Longitude: 6.1}
	var got *Asset
	f.m.TakePhoto(camera.Preview{Orientation: camera.LandscapeRight}, loc, func(a *Asset) { got = a })
	f.settle(t)

	require.NotNil(t, got)
	assert.NotEmpty(t, got.ID)
	assert.NotEmpty(t, got.Data)
	assert.Equal(t, "virtual-back", got.DeviceID)
	assert.Equal(t, loc, got.Location)
	assert.Equal(t, now, got.CapturedAt)
	w, h := camera.PresetPhoto.Resolution()
	assert.Equal(t, w, got.Width)
	assert.Equal(t, h, got.Height)
	assert.Equal(t, Running, f.m.State())
}

func TestTakePhotoSerialized(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized, CaptureLatency: 10 * time.Millisecond})
	f.start(t)

	var order []string
	for i := 0; i < 4; i++ {
		i := i
		f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) {
			assert.NotNil(t, a)
			order = append(order, fmt.Sprint(i))
		})
	}
	f.settle(t)

	assert.Equal(t, []string{"0", "1", "2", "3"}, order)
	assert.Equal(t, 1, f.hw.Stats().MaxConcurrentCaptures)
	assert.Equal(t, 4, f.hw.Stats().Captures)
}

func TestTakePhotoFailure(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	f.start(t)
	f.hw.FailCapture(errors.New("sensor error"))

	called := false
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) {
		called = true
		assert.Nil(t, a)
	})
	f.settle(t)

	assert.True(t, called)
	assert.Equal(t, Running, f.m.State())
}

func TestTakePhotoTimeout(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized, CaptureLatency: time.Second})
	f.m.opts.CaptureTimeout = 20 * time.Millisecond
	f.start(t)

	called := false
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) {
		called = true
		assert.Nil(t, a)
	})
	f.settle(t)
	assert.True(t, called)
}

func TestTakePhotoWhenUnavailable(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Denied})
	f.m.Setup()

	called := false
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) {
		called = true
		assert.Nil(t, a)
	})
	f.settle(t)
	assert.True(t, called)
}

func TestFlash(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})

	f.m.Flash(camera.FlashOn)
	assert.Equal(t, camera.FlashOff, f.m.FlashMode(), "no device yet")

	f.start(t)
	f.m.Flash(camera.FlashOn)
	assert.Equal(t, camera.FlashOn, f.m.FlashMode())

	var got *Asset
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) { got = a })
	f.settle(t)
	require.NotNil(t, got)
	assert.Equal(t, camera.FlashOn, got.Flash)

	f.m.SwitchCamera(nil)
	f.settle(t)
	f.m.Flash(camera.FlashAuto)
	assert.Equal(t, camera.FlashOn, f.m.FlashMode(), "front camera has no flash")
}

func TestFlashChangedDuringCapture(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized, CaptureLatency: 50 * time.Millisecond})
	f.start(t)

	var first, second *Asset
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) { first = a })
	require.Eventually(t, func() bool { return f.m.State() == Capturing }, time.Second, time.Millisecond)
	f.m.Flash(camera.FlashOn)
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) { second = a })
	f.settle(t)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, camera.FlashOff, first.Flash)
	assert.Equal(t, camera.FlashOn, second.Flash)
}

func TestFocus(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	f.start(t)

	f.m.Focus(camera.Point{X: 2, Y: -1})
	f.settle(t)
	p, ok := f.hw.PointOfInterest("virtual-back")
	require.True(t, ok)
	assert.Equal(t, camera.Point{X: 1, Y: 0}, p, "point must be clamped")

	f.m.SwitchCamera(nil)
	f.m.Focus(camera.Point{X: 0.5, Y: 0.5})
	f.settle(t)

	_, ok = f.hw.PointOfInterest("virtual-front")
	assert.False(t, ok, "front camera has no focus control")
	p, _ = f.hw.PointOfInterest("virtual-back")
	assert.Equal(t, camera.Point{X: 1, Y: 0}, p)
	assert.Equal(t, Running, f.m.State())
}

func TestCloseDiscardsInFlightCapture(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized, CaptureLatency: 50 * time.Millisecond})
	f.start(t)

	f.m.TakePhoto(camera.Preview{}, nil, func(*Asset) { f.rec.add("photo") })
	require.Eventually(t, func() bool { return f.m.State() == Capturing }, time.Second, time.Millisecond)
	f.m.TakePhoto(camera.Preview{}, nil, func(*Asset) { f.rec.add("photo") })
	f.m.SwitchCamera(func() { f.rec.add("done") })

	f.m.Close()
	assert.Equal(t, Closed, f.m.State())

	select {
	case <-f.m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hardware queue did not drain")
	}
	require.NoError(t, f.main.Sync(context.Background()))

	assert.Equal(t, []string{"start:virtual-back"}, f.rec.list())
	assert.Equal(t, 1, f.hw.Stats().Captures, "queued capture must be skipped")
	assert.Equal(t, Closed, f.m.State())
}

func TestRequestsAfterCloseNeverComplete(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	f.start(t)

	f.m.Close()
	f.m.TakePhoto(camera.Preview{}, nil, func(*Asset) { f.rec.add("photo") })
	f.m.SwitchCamera(func() { f.rec.add("switched") })
	f.m.Flash(camera.FlashOn)
	f.m.Focus(camera.Point{X: 0.5, Y: 0.5})

	select {
	case <-f.m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hardware queue did not drain")
	}
	require.NoError(t, f.main.Sync(context.Background()))

	assert.Equal(t, []string{"start:virtual-back"}, f.rec.list())
	assert.Equal(t, 0, f.hw.Stats().Captures)
	_, focused := f.hw.PointOfInterest("virtual-back")
	assert.False(t, focused)
}

func TestSwitchLosingBothInputsMakesCameraUnavailable(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})
	f.start(t)

	f.hw.FailAddInput("virtual-front", true)
	f.hw.FailAddInput("virtual-back", true)
	f.m.SwitchCamera(func() { f.rec.add("switched") })
	f.settle(t)

	assert.Equal(t, Unavailable, f.m.State())
	assert.Equal(t, []string{"start:virtual-back", "unavailable", "switched"}, f.rec.list())
	_, ok := f.m.CurrentDevice()
	assert.False(t, ok)

	var got *Asset
	called := false
	f.m.TakePhoto(camera.Preview{}, nil, func(a *Asset) { called, got = true, a })
	f.settle(t)
	assert.True(t, called)
	assert.Nil(t, got)

	f.hw.FailAddInput("virtual-front", false)
	f.hw.FailAddInput("virtual-back", false)
	f.m.Setup()
	f.settle(t)
	assert.Equal(t, Running, f.m.State())
	assert.Equal(t, 2, f.hw.Stats().SessionsStarted)
}

func TestCloseBeforeSetup(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})

	f.m.Close()
	f.m.Close()
	f.m.Setup()
	<-f.m.Done()

	assert.Equal(t, Closed, f.m.State())
	assert.Empty(t, f.rec.list())
}

func TestDevices(t *testing.T) {
	f := newFixture(t, camera.VirtualConfig{Authorization: camera.Authorized})

	list, err := f.m.Devices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	f.start(t)
	list, err = f.m.Devices(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
