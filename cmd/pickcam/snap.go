package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cjeanneret/pickcam/internal/config"
	"github.com/cjeanneret/pickcam/internal/hw/camera"
	"github.com/cjeanneret/pickcam/internal/logic/capture"
	"github.com/cjeanneret/pickcam/internal/logic/queue"
)

func newSnapCmd(flags *rootFlags) *cobra.Command {
	var (
		out      string
		position string
	)
	cmd := &cobra.Command{
		Use:   "snap",
		Short: "Take a single photo and write it as JPEG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if position != "" {
				if _, err := camera.ParsePosition(position); err != nil {
					return err
				}
				cfg.Camera.DefaultPosition = position
			}
			a, err := snap(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if out == "" {
				out = a.ID + ".jpg"
			}
			if err := os.WriteFile(filepath.Clean(out), a.Data, 0o644); err != nil {
				return errors.Wrap(err, "write photo")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d %s -> %s\n", a.ID, a.Width, a.Height, a.DeviceID, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <asset id>.jpg)")
	cmd.Flags().StringVar(&position, "position", "", "camera position to shoot with: back or front")
	return cmd
}

var errCameraUnavailable = errors.New("camera unavailable")

// snapListener reports the outcome of session setup.
type snapListener struct {
	capture.NopListener
	ready chan error
}

func (l *snapListener) DidStart(camera.Session) { l.ready <- nil }
func (l *snapListener) NotAvailable()           { l.ready <- errCameraUnavailable }

// snap runs a session manager just long enough for one capture.
func snap(ctx context.Context, cfg *config.Config) (*capture.Asset, error) {
	hw, closeHW, err := newHardware(cfg)
	if err != nil {
		return nil, err
	}
	defer releaseHardware(closeHW)

	loop := queue.NewSerial("main")
	defer loop.Close()

	l := &snapListener{ready: make(chan error, 1)}
	m := capture.NewManager(hw, l, capture.Options{
		Preset:          cfg.Preset(),
		DefaultPosition: cfg.DefaultPosition(),
		CaptureTimeout:  cfg.CaptureTimeout(),
		Main:            loop,
	})
	defer func() {
		m.Close()
		<-m.Done()
	}()

	m.Setup()
	select {
	case err := <-l.ready:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	shot := make(chan *capture.Asset, 1)
	m.TakePhoto(cfg.Preview(), nil, func(a *capture.Asset) { shot <- a })
	select {
	case a := <-shot:
		if a == nil {
			return nil, errors.New("capture failed")
		}
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
