// Package config loads the settings of the picar command.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// PICAR_* environment variables. Command line flags are applied by the
// caller before Validate.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v2"

	"github.com/teranos/picar"
	"github.com/teranos/picar/trip"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PICAR_"

// Config is the complete configuration of a driving run.
type Config struct {
	Drive          DriveConfig       `yaml:"drive" envPrefix:"DRIVE_"`
	SaveImages     bool              `yaml:"save_images" env:"SAVE_IMAGES"`
	DataDir        string            `yaml:"data_dir" env:"DATA_DIR"`
	Manifest       bool              `yaml:"manifest" env:"MANIFEST"`
	ContactColumns int               `yaml:"contact_sheet_columns" env:"CONTACT_SHEET_COLUMNS"`
	Script         string            `yaml:"script" env:"SCRIPT"`
	MaxStumbles    int               `yaml:"max_stumbles" env:"MAX_STUMBLES"` // 0 tolerates any number of stumbles
	Camera         CameraConfig      `yaml:"camera" envPrefix:"CAMERA_"`
	Serial         SerialConfig      `yaml:"serial" envPrefix:"SERIAL_"`
	Calibration    CalibrationConfig `yaml:"calibration" envPrefix:"CALIBRATION_"`
	Console        ConsoleConfig     `yaml:"console" envPrefix:"CONSOLE_"`
	Log            LogConfig         `yaml:"log" envPrefix:"LOG_"`
}

// DriveConfig holds the translator settings.
type DriveConfig struct {
	Speed     int `yaml:"speed" env:"SPEED"`
	SteerStep int `yaml:"steer_step" env:"STEER_STEP"`
}

// CameraConfig selects the frame source: "pattern", "replay:<dir>" or a
// V4L2 device path.
type CameraConfig struct {
	Source string `yaml:"source" env:"SOURCE"`
	Width  int    `yaml:"width" env:"WIDTH"`
	Height int    `yaml:"height" env:"HEIGHT"`
	FPS    int    `yaml:"fps" env:"FPS"`
	// Frames ends a pattern source after this many frames. 0 is unlimited.
	Frames int `yaml:"frames" env:"FRAMES"`
}

// SerialConfig selects the actuator: a serial port, or "sim".
type SerialConfig struct {
	Port string `yaml:"port" env:"PORT"`
	Baud int    `yaml:"baud" env:"BAUD"`
}

// CalibrationConfig holds the servo trims.
type CalibrationConfig struct {
	SteeringOffset int `yaml:"steering_offset" env:"STEERING_OFFSET"`
	PanOffset      int `yaml:"pan_offset" env:"PAN_OFFSET"`
	TiltOffset     int `yaml:"tilt_offset" env:"TILT_OFFSET"`
}

// ConsoleConfig tunes the terminal console.
type ConsoleConfig struct {
	// ReleaseAfter is how long a key may go without a repeat before it
	// counts as released.
	ReleaseAfter time.Duration `yaml:"release_after" env:"RELEASE_AFTER"`
	// Keys maps terminal key names to driving keys. File entries are merged
	// into the defaults.
	Keys map[string]string `yaml:"keys" env:"KEYS"`
}

// LogConfig controls the log sink.
type LogConfig struct {
	File       string `yaml:"file" env:"FILE"`
	Level      string `yaml:"level" env:"LEVEL"`
	JSON       bool   `yaml:"json" env:"JSON"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
}

// DefaultKeys is the stock key map.
func DefaultKeys() map[string]string {
	return map[string]string{
		"w":      "forward",
		"up":     "forward",
		"s":      "backward",
		"down":   "backward",
		"a":      "left",
		"left":   "left",
		"d":      "right",
		"right":  "right",
		"q":      "quit",
		"ctrl+c": "quit",
		"esc":    "quit",
	}
}

// Default returns the command's defaults. Speed and step are the
// command line defaults, gentler than the library's.
func Default() *Config {
	cal := picar.DefaultCalibration()
	return &Config{
		Drive: DriveConfig{
			Speed:     40,
			SteerStep: 2,
		},
		DataDir:        "../data/lane_navigation",
		ContactColumns: 8,
		Camera: CameraConfig{
			Source: "pattern",
			Width:  320,
			Height: 240,
			FPS:    15,
		},
		Serial: SerialConfig{
			Port: "sim",
			Baud: 115200,
		},
		Calibration: CalibrationConfig{
			SteeringOffset: cal.SteeringOffset,
			PanOffset:      cal.PanOffset,
			TiltOffset:     cal.TiltOffset,
		},
		Console: ConsoleConfig{
			ReleaseAfter: 600 * time.Millisecond,
			Keys:         DefaultKeys(),
		},
		Log: LogConfig{
			File:       "picar.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and the environment. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if err := c.Translator().Validate(); err != nil {
		add("drive: %v", err)
	}
	if c.SaveImages && strings.TrimSpace(c.DataDir) == "" {
		add("data_dir is required when saving images")
	}
	if strings.TrimSpace(c.Camera.Source) == "" {
		add("camera.source is required")
	}
	if strings.HasPrefix(c.Camera.Source, "replay:") && strings.TrimPrefix(c.Camera.Source, "replay:") == "" {
		add("camera.source replay needs a directory")
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 || c.Camera.Frames < 0 {
		add("camera sizes, fps and frames must not be negative")
	}
	if strings.TrimSpace(c.Serial.Port) == "" {
		add("serial.port is required (use \"sim\" for no hardware)")
	}
	if c.Serial.Baud <= 0 {
		add("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Console.ReleaseAfter < 50*time.Millisecond {
		add("console.release_after must be at least 50ms, got %s", c.Console.ReleaseAfter)
	}
	if _, err := c.KeyBindings(); err != nil {
		add("console.keys: %v", err)
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		add("log.level %q is not a level", c.Log.Level)
	}
	if c.ContactColumns < 0 {
		add("contact_sheet_columns must not be negative")
	}
	if c.MaxStumbles < 0 {
		add("max_stumbles must not be negative, got %d", c.MaxStumbles)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Translator returns the drive settings as a translator.
func (c *Config) Translator() picar.Translator {
	return picar.Translator{Step: c.Drive.SteerStep, Speed: c.Drive.Speed}
}

// TripPolicy returns the default trip policy with the configured
// stumble budget.
func (c *Config) TripPolicy() *trip.Policy {
	p := trip.DefaultPolicy()
	p.MaxStumbles = c.MaxStumbles
	return p
}

// CalibrationValue returns the configured servo trims.
func (c *Config) CalibrationValue() picar.Calibration {
	return picar.Calibration{
		SteeringOffset: c.Calibration.SteeringOffset,
		PanOffset:      c.Calibration.PanOffset,
		TiltOffset:     c.Calibration.TiltOffset,
	}
}

// KeyBindings resolves the console key map. A binding must name a driving
// key and every driving key needs at least one binding.
func (c *Config) KeyBindings() (map[string]picar.Key, error) {
	out := make(map[string]picar.Key, len(c.Console.Keys))
	bound := map[picar.Key]bool{}

	names := make([]string, 0, len(c.Console.Keys))
	for name := range c.Console.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		k, err := picar.ParseKey(c.Console.Keys[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[strings.ToLower(name)] = k
		bound[k] = true
	}
	for _, k := range []picar.Key{picar.KeyLeft, picar.KeyRight, picar.KeyForward, picar.KeyBackward, picar.KeyQuit} {
		if !bound[k] {
			return nil, fmt.Errorf("no key bound to %s", k)
		}
	}
	return out, nil
}
