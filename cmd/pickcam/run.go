package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/pickcam/internal/config"
	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/logic/capture"
	"github.com/cjeanneret/pickcam/internal/logic/cart"
	"github.com/cjeanneret/pickcam/internal/logic/location"
	"github.com/cjeanneret/pickcam/internal/logic/queue"
	"github.com/cjeanneret/pickcam/internal/screen"
	"github.com/cjeanneret/pickcam/internal/web"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	webPort := &webPortFlag{defaultPort: 8080}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the camera screen and serve it over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if webPort.port() != 0 {
				cfg.Web.Addr = ":" + strconv.Itoa(webPort.port())
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runScreen(ctx, cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().Var(webPort, "web", "listen on port instead of web.addr; --web alone for 8080")
	cmd.Flags().Lookup("web").NoOptDefVal = strconv.Itoa(webPort.defaultPort)
	return cmd
}

// runScreen builds the screen, serves it until ctx is cancelled or the
// screen is closed, then tears the capture session down.
func runScreen(ctx context.Context, out io.Writer, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hw, closeHW, err := newHardware(cfg)
	if err != nil {
		return err
	}
	defer releaseHardware(closeHW)

	b := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(out, web.BroadcastWriter(b)))

	loop := queue.NewSerial("main")
	defer loop.Close()

	photos := cart.New()

	var loc location.Provider
	var tracker *location.Tracker
	if cfg.Camera.RecordLocation {
		tracker = location.NewTracker(location.Config{
			Fixed:  fixedCoordinate(cfg.Location.Fixed),
			MaxAge: cfg.LocationMaxAge(),
		})
		loc = tracker
	}

	relay := web.NewEventRelay(b)
	relay.OnClose = cancel
	relay.OnDone = func([]*capture.Asset) { cancel() }
	state := web.NewStatePublisher(b)

	ctrl := screen.New(screen.Options{
		Hardware: hw,
		Capture: capture.Options{
			Preset:          cfg.Preset(),
			DefaultPosition: cfg.DefaultPosition(),
			CaptureTimeout:  cfg.CaptureTimeout(),
		},
		Main:      loop,
		Cart:      photos,
		Location:  loc,
		Events:    relay,
		Renderer:  state,
		Preview:   cfg.Preview(),
		StackSize: cfg.Web.StackSize,
	})

	opts := web.Options{
		Main:             loop,
		Screen:           ctrl,
		Devices:          ctrl.Manager(),
		Cart:             photos,
		State:            state,
		Broadcaster:      b,
		ThumbnailSize:    cfg.Thumbnail.Size,
		ThumbnailQuality: cfg.Thumbnail.Quality,
		ThumbnailTTL:     cfg.ThumbnailTTL(),
	}
	if tracker != nil {
		opts.Location = tracker
	}
	srv := web.NewServer(cfg.Web.Addr, web.NewHandlers(opts))

	loop.Dispatch(func() {
		ctrl.Load()
		ctrl.Appear()
	})
	debug.Summary("Camera screen")
	fmt.Fprintf(out, "camera screen on http://localhost%s\n", cfg.Web.Addr)

	err = srv.Run(ctx)

	loop.Dispatch(func() {
		ctrl.Disappear()
		ctrl.Dismiss()
	})
	<-ctrl.Done()
	debug.Summary("Camera screen closed")
	debug.Value("Photos in cart", photos.Len())
	return err
}

func fixedCoordinate(c *config.CoordinateConfig) *capture.Coordinate {
	if c == nil {
		return nil
	}
	return &capture.Coordinate{Latitude: c.Latitude, Longitude: c.Longitude, Altitude: c.Altitude}
}

// webPortFlag implements pflag.Value for --web: 0 = use web.addr,
// --web alone → 8080, --web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }
