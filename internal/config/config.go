package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/pickcam/internal/hw/camera"
)

// MaxConfigFileBytes caps the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Backend names.
const (
	BackendVirtual = "virtual"
	BackendDSLR    = "dslr_gpio"
)

// DeviceConfig declares one virtual capture device.
type DeviceConfig struct {
	ID       string `yaml:"id" validate:"required"`
	Name     string `yaml:"name"`
	Position string `yaml:"position" validate:"omitempty,oneof=back rear front"`
	HasFlash bool   `yaml:"has_flash"`
	HasFocus bool   `yaml:"has_focus"`
}

// CameraConfig selects and tunes the capture backend.
type CameraConfig struct {
	Backend          string `yaml:"backend" default:"virtual" validate:"oneof=virtual dslr_gpio"`
	Preset           string `yaml:"preset" default:"photo" validate:"oneof=photo high medium"`
	DefaultPosition  string `yaml:"default_position" default:"back" validate:"oneof=back rear front"`
	RecordLocation   bool   `yaml:"record_location"`
	CaptureTimeoutMs int    `yaml:"capture_timeout_ms" default:"10000" validate:"gt=0"`

	// Virtual backend only.
	Authorization    string         `yaml:"authorization" default:"authorized" validate:"oneof=authorized denied not_determined"`
	DenyOnPrompt     bool           `yaml:"deny_on_prompt"` // answer to the permission prompt
	CaptureLatencyMs int            `yaml:"capture_latency_ms" validate:"gte=0"`
	JPEGQuality      int            `yaml:"jpeg_quality" default:"85" validate:"gte=1,lte=100"`
	Devices          []DeviceConfig `yaml:"devices" validate:"dive"`
}

// DSLRConfig wires a tethered DSLR to GPIO pins (BCM numbering).
type DSLRConfig struct {
	Name            string `yaml:"name"`
	FocusPin        int    `yaml:"focus_pin" default:"24" validate:"gt=0"`
	ShutterPin      int    `yaml:"shutter_pin" default:"25" validate:"gt=0"`
	FlashPin        int    `yaml:"flash_pin" validate:"gte=0"` // 0 = no flash relay
	FocusDelayMs    int    `yaml:"focus_delay_ms" default:"500" validate:"gte=0"`
	ShutterDelayMs  int    `yaml:"shutter_delay_ms" default:"200" validate:"gte=0"`
	ImportDir       string `yaml:"import_dir"`
	ImportTimeoutMs int    `yaml:"import_timeout_ms" default:"5000" validate:"gt=0"`
	PollIntervalMs  int    `yaml:"poll_interval_ms" default:"50" validate:"gt=0"`
	// Note: the remote connector ground is wired to Raspberry Pi ground
}

// CoordinateConfig is a fixed position reported until a real fix arrives.
type CoordinateConfig struct {
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	Altitude  float64 `yaml:"altitude"`
}

// LocationConfig tunes location tagging.
type LocationConfig struct {
	Fixed   *CoordinateConfig `yaml:"fixed,omitempty"`
	MaxAgeS int               `yaml:"max_age_s" default:"300" validate:"gte=0"`
}

// ThumbnailConfig tunes the stack view thumbnails.
type ThumbnailConfig struct {
	Size      int `yaml:"size" default:"160" validate:"gte=16,lte=1024"`
	Quality   int `yaml:"quality" default:"75" validate:"gte=1,lte=100"`
	CacheTTLs int `yaml:"cache_ttl_s" default:"600" validate:"gt=0"`
}

// WebConfig configures the HTTP surface and the preview it stands for.
type WebConfig struct {
	Addr               string  `yaml:"addr" default:":8080" validate:"required"`
	StackSize          int     `yaml:"stack_size" default:"3" validate:"gte=1,lte=20"`
	PreviewWidth       float64 `yaml:"preview_width" default:"640" validate:"gt=0"`
	PreviewHeight      float64 `yaml:"preview_height" default:"480" validate:"gt=0"`
	PreviewOrientation string  `yaml:"preview_orientation" default:"landscape_right" validate:"oneof=portrait portrait_upside_down landscape_left landscape_right"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level" validate:"gte=0,lte=4"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`                          // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	DSLR      DSLRConfig      `yaml:"dslr"`
	Location  LocationConfig  `yaml:"location"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Web       WebConfig       `yaml:"web"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file directly
// inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return errors.Errorf("config path %q must not contain ..", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return errors.Errorf("config path %q must end in .yaml", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return errors.Wrap(err, "resolve config path")
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return errors.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat config file")
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, errors.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

// Parse decodes YAML content, fills in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal yaml")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "set defaults")
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, e.Namespace()+" fails "+e.Tag())
			}
			return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, "validate config")
	}

	if cfg.Camera.Backend == BackendDSLR && cfg.DSLR.FocusPin == cfg.DSLR.ShutterPin {
		return errors.Errorf("dslr.focus_pin and dslr.shutter_pin must differ, both are %d", cfg.DSLR.FocusPin)
	}
	if cfg.Camera.Backend == BackendDSLR && cfg.DSLR.FlashPin != 0 &&
		(cfg.DSLR.FlashPin == cfg.DSLR.FocusPin || cfg.DSLR.FlashPin == cfg.DSLR.ShutterPin) {
		return errors.Errorf("dslr.flash_pin %d is already used", cfg.DSLR.FlashPin)
	}
	seen := make(map[string]bool, len(cfg.Camera.Devices))
	for _, d := range cfg.Camera.Devices {
		if seen[d.ID] {
			return errors.Errorf("camera.devices: duplicate id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Preset returns the session preset.
func (c *Config) Preset() camera.Preset {
	return camera.Preset(c.Camera.Preset)
}

// DefaultPosition returns the preferred camera position.
func (c *Config) DefaultPosition() camera.Position {
	p, _ := camera.ParsePosition(c.Camera.DefaultPosition)
	return p
}

// CaptureTimeout returns how long a capture may take.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Camera.CaptureTimeoutMs) * time.Millisecond
}

// CaptureLatency returns the simulated capture duration of the virtual backend.
func (c *Config) CaptureLatency() time.Duration {
	return time.Duration(c.Camera.CaptureLatencyMs) * time.Millisecond
}

// Authorization returns the initial permission state of the virtual backend.
func (c *Config) Authorization() camera.AuthorizationStatus {
	switch c.Camera.Authorization {
	case "denied":
		return camera.Denied
	case "not_determined":
		return camera.NotDetermined
	default:
		return camera.Authorized
	}
}

// Devices returns the virtual devices, or the default front/back pair
// when none are declared.
func (c *Config) Devices() []camera.Device {
	if len(c.Camera.Devices) == 0 {
		return camera.DefaultVirtualDevices()
	}
	out := make([]camera.Device, 0, len(c.Camera.Devices))
	for _, d := range c.Camera.Devices {
		pos, _ := camera.ParsePosition(d.Position)
		name := d.Name
		if name == "" {
			name = d.ID
		}
		out = append(out, camera.Device{
			ID:       d.ID,
			Name:     name,
			Position: pos,
			HasFlash: d.HasFlash,
			HasFocus: d.HasFocus,
		})
	}
	return out
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.DSLR.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.DSLR.ShutterDelayMs) * time.Millisecond
}

// ImportTimeout returns how long to wait for a shot in the import dir.
func (c *Config) ImportTimeout() time.Duration {
	return time.Duration(c.DSLR.ImportTimeoutMs) * time.Millisecond
}

// PollInterval returns how often the import dir is scanned.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.DSLR.PollIntervalMs) * time.Millisecond
}

// LocationMaxAge returns how long a location fix stays valid.
func (c *Config) LocationMaxAge() time.Duration {
	return time.Duration(c.Location.MaxAgeS) * time.Second
}

// ThumbnailTTL returns how long rendered thumbnails are cached.
func (c *Config) ThumbnailTTL() time.Duration {
	return time.Duration(c.Thumbnail.CacheTTLs) * time.Second
}

// Preview returns the preview rect touches and captures go through.
func (c *Config) Preview() camera.Preview {
	o := camera.LandscapeRight
	switch c.Web.PreviewOrientation {
	case "portrait":
		o = camera.Portrait
	case "portrait_upside_down":
		o = camera.PortraitUpsideDown
	case "landscape_left":
		o = camera.LandscapeLeft
	}
	return camera.Preview{Width: c.Web.PreviewWidth, Height: c.Web.PreviewHeight, Orientation: o}
}
