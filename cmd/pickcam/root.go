package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cjeanneret/pickcam/internal/config"
	"github.com/cjeanneret/pickcam/internal/debug"
	"github.com/cjeanneret/pickcam/internal/hw/camera"
	"github.com/cjeanneret/pickcam/internal/hw/gpio"
)

type rootFlags struct {
	configPath string
	debugLevel int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "pickcam",
		Short:         "Camera screen of a photo picker",
		Long:          "pickcam drives a capture session (virtual camera or a tethered DSLR over GPIO), keeps the picked photos in a cart and exposes the camera screen over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")
	rootCmd.PersistentFlags().IntVar(&flags.debugLevel, "debug", -1, "debug level 0-4, overrides defaults.debug_level")

	rootCmd.AddCommand(
		newRunCmd(flags),
		newDevicesCmd(flags),
		newSnapCmd(flags),
	)
	return rootCmd
}

// loadConfig reads the config file, or falls back to built-in defaults when
// the default path does not exist, then initializes the debug system.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(flags.configPath); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
	} else {
		if err := config.ValidateConfigPath(flags.configPath); err != nil {
			return nil, err
		}
		if cfg, err = config.Load(flags.configPath); err != nil {
			return nil, errors.Wrap(err, "load config")
		}
	}

	if flags.debugLevel >= 0 {
		if flags.debugLevel > debug.LevelTrace {
			return nil, errors.Errorf("--debug must be 0-%d, got %d", debug.LevelTrace, flags.debugLevel)
		}
		cfg.Defaults.DebugLevel = flags.debugLevel
	}
	debug.Init(cfg.Defaults.DebugLevel)
	debug.SetOutput(cmd.ErrOrStderr())
	debug.Section("Initialization")
	debug.Value("Config path", flags.configPath)
	debug.Value("Debug level", debug.Level())
	return cfg, nil
}

// releaseHardware runs the closer returned by newHardware and logs its error.
func releaseHardware(closeHW func() error) {
	if err := closeHW(); err != nil {
		debug.Error("release hardware", err)
	}
}

// newHardware builds the capture backend selected in the config. The
// returned closer releases GPIO when the DSLR backend is used.
func newHardware(cfg *config.Config) (camera.Hardware, func() error, error) {
	nop := func() error { return nil }

	switch cfg.Camera.Backend {
	case config.BackendVirtual:
		debug.Value("Camera backend", cfg.Camera.Backend)
		return camera.NewVirtual(camera.VirtualConfig{
			Devices:        cfg.Devices(),
			Authorization:  cfg.Authorization(),
			GrantOnPrompt:  !cfg.Camera.DenyOnPrompt,
			CaptureLatency: cfg.CaptureLatency(),
			JPEGQuality:    cfg.Camera.JPEGQuality,
		}), nop, nil

	case config.BackendDSLR:
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return nil, nop, errors.Wrap(err, "init GPIO")
		}
		debug.PrintStruct("DSLR config", cfg.DSLR)
		return camera.NewDSLR(drv, camera.DSLRConfig{
			Name:          cfg.DSLR.Name,
			FocusPin:      cfg.DSLR.FocusPin,
			ShutterPin:    cfg.DSLR.ShutterPin,
			FlashPin:      cfg.DSLR.FlashPin,
			FocusDelay:    cfg.FocusDelay(),
			ShutterDelay:  cfg.ShutterDelay(),
			ImportDir:     cfg.DSLR.ImportDir,
			ImportTimeout: cfg.ImportTimeout(),
			PollInterval:  cfg.PollInterval(),
		}), drv.Close, nil

	default:
		return nil, nop, errors.Errorf("unsupported camera backend: %s", cfg.Camera.Backend)
	}
}
