// Package config loads the humanverify YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ayusman/humanverify/internal/capture"
	"github.com/ayusman/humanverify/internal/geometry"
	"github.com/ayusman/humanverify/internal/inference"
	"github.com/ayusman/humanverify/internal/overlay"
	"github.com/ayusman/humanverify/internal/sampler"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Inference transports.
const (
	TransportHTTP   = "http"
	TransportSocket = "socket"
)

// Config is the complete humanverify configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Sampler   SamplerConfig   `yaml:"sampler"`
	Inference InferenceConfig `yaml:"inference"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Transform TransformConfig `yaml:"transform"`
	Server    ServerConfig    `yaml:"server"`
	Tray      TrayConfig      `yaml:"tray"`
	Log       LogConfig       `yaml:"log"`
}

// CameraConfig contains capture device settings.
type CameraConfig struct {
	DeviceID    int    `yaml:"device_id"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FPS         int    `yaml:"fps"`
	Orientation string `yaml:"orientation"` // portrait, portrait-upside-down, landscape-left, landscape-right
}

type SamplerConfig struct {
	Stride int `yaml:"stride"`
}

// InferenceConfig contains the inference service settings.
type InferenceConfig struct {
	Transport   string        `yaml:"transport"`   // http or socket
	Endpoint    string        `yaml:"endpoint"`    // used by the http transport
	SocketPath  string        `yaml:"socket_path"` // used by the socket transport
	MaxInFlight int           `yaml:"max_in_flight"`
	Timeout     time.Duration `yaml:"timeout"`
	JPEGQuality int           `yaml:"jpeg_quality"`
}

// OverlayConfig describes the view detections are drawn on.
type OverlayConfig struct {
	Mirrored   bool    `yaml:"mirrored"`
	ViewWidth  float64 `yaml:"view_width"`
	ViewHeight float64 `yaml:"view_height"`
}

type TransformConfig struct {
	VerticalBias float64 `yaml:"vertical_bias"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	ov := overlay.DefaultConfig()
	inf := inference.DefaultConfig()

	return &Config{
		Camera: CameraConfig{
			DeviceID:    0,
			Width:       capture.DefaultWidth,
			Height:      capture.DefaultHeight,
			FPS:         capture.DefaultFPS,
			Orientation: capture.OrientationPortrait.String(),
		},
		Sampler: SamplerConfig{Stride: sampler.DefaultStride},
		Inference: InferenceConfig{
			Transport:   TransportHTTP,
			Endpoint:    "http://127.0.0.1:5000/detect",
			SocketPath:  "/tmp/humanverify.sock",
			MaxInFlight: inf.MaxInFlight,
			Timeout:     inf.Timeout,
			JPEGQuality: inference.DefaultJPEGQuality,
		},
		Overlay: OverlayConfig{
			Mirrored:   ov.Mirrored,
			ViewWidth:  ov.ViewSize.Width,
			ViewHeight: ov.ViewSize.Height,
		},
		Transform: TransformConfig{VerticalBias: geometry.DefaultVerticalBias},
		Server: ServerConfig{
			Addr:      ":8080",
			StaticDir: "web",
		},
		Tray: TrayConfig{Enabled: false},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads path and overlays it on Default. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera: invalid resolution %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera: fps must be positive, got %d", c.Camera.FPS))
	}
	if _, err := capture.ParseOrientation(c.Camera.Orientation); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	}

	if c.Sampler.Stride < 1 {
		errs = append(errs, fmt.Errorf("sampler: stride must be at least 1, got %d", c.Sampler.Stride))
	}

	switch c.Inference.Transport {
	case TransportHTTP:
		if c.Inference.Endpoint == "" {
			errs = append(errs, errors.New("inference: endpoint is required for the http transport"))
		}
	case TransportSocket:
		if c.Inference.SocketPath == "" {
			errs = append(errs, errors.New("inference: socket_path is required for the socket transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("inference: unknown transport %q", c.Inference.Transport))
	}
	if c.Inference.MaxInFlight < 1 {
		errs = append(errs, fmt.Errorf("inference: max_in_flight must be at least 1, got %d", c.Inference.MaxInFlight))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("inference: timeout must be positive, got %s", c.Inference.Timeout))
	}
	if c.Inference.JPEGQuality < 1 || c.Inference.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("inference: jpeg_quality must be within 1..100, got %d", c.Inference.JPEGQuality))
	}

	if !c.ViewSize().Valid() {
		errs = append(errs, fmt.Errorf("overlay: invalid view size %gx%g", c.Overlay.ViewWidth, c.Overlay.ViewHeight))
	}

	if c.Transform.VerticalBias < 0 || c.Transform.VerticalBias >= 1 {
		errs = append(errs, fmt.Errorf("transform: vertical_bias must be within [0, 1), got %g", c.Transform.VerticalBias))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server: addr is required"))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

// CameraSettings returns the capture device settings.
func (c *Config) CameraSettings() capture.CameraConfig {
	return capture.CameraConfig{
		DeviceID: c.Camera.DeviceID,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		FPS:      c.Camera.FPS,
	}
}

// Orientation returns the parsed camera orientation, portrait if invalid.
func (c *Config) Orientation() capture.Orientation {
	o, _ := capture.ParseOrientation(c.Camera.Orientation)
	return o
}

// ClientSettings returns the inference client settings.
func (c *Config) ClientSettings() inference.Config {
	return inference.Config{
		MaxInFlight: c.Inference.MaxInFlight,
		Timeout:     c.Inference.Timeout,
	}
}

// ViewSize returns the configured overlay view size.
func (c *Config) ViewSize() geometry.Size {
	return geometry.Size{Width: c.Overlay.ViewWidth, Height: c.Overlay.ViewHeight}
}

// OverlaySettings returns the reconciler configuration.
func (c *Config) OverlaySettings() overlay.Config {
	return overlay.Config{
		Mirrored:    c.Overlay.Mirrored,
		ViewSize:    c.ViewSize(),
		Transformer: geometry.Transformer{VerticalBias: c.Transform.VerticalBias},
	}
}

// LogLevel returns the parsed log level, info if invalid.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
