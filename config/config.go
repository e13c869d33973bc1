package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/abihf/flowimg/capture"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read by Load when FLOWCAM_CONFIG is not set.
const DefaultPath = "/etc/flowcam/config.json"

// Defaults.
const (
	DefaultBackend = "v4l2"
	DefaultWidth   = 640
	DefaultHeight  = 480
	DefaultFPS     = 15
	DefaultTensor  = "float32"
	DefaultSocket  = "/var/run/flowcam.sock"
	DefaultPidFile = "/var/run/flowcam.pid"
)

// TensorTypes lists the accepted values of Config.Tensor.
var TensorTypes = []string{"uint8", "uint16", "int32", "float32", "float64"}

type Config struct {
	Backend  string `json:"backend" yaml:"backend"`
	Device   int    `json:"device" yaml:"device"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	FPS      int    `json:"fps" yaml:"fps"`
	Tensor   string `json:"tensor" yaml:"tensor"`
	LogLevel string `json:"log_level" yaml:"log_level"`
	Socket   string `json:"socket" yaml:"socket"`
	PidFile  string `json:"pid_file" yaml:"pid_file"`
	// CPU pins the capture loop to one core when set.
	CPU *int `json:"cpu,omitempty" yaml:"cpu,omitempty"`
}

// Load reads the file named by FLOWCAM_CONFIG, or DefaultPath. A missing or
// unreadable file is logged and defaults are used instead.
func Load() *Config {
	path := os.Getenv("FLOWCAM_CONFIG")
	if path == "" {
		path = DefaultPath
	}

	conf, err := LoadFile(path)
	if err != nil {
		slog.Warn("Failed to load config file", "path", path, "error", err)
		conf = &Config{}
		conf.applyDefaults()
	}
	return conf
}

// LoadFile parses path as YAML when it ends in .yaml or .yml and as JSON
// otherwise, then applies defaults and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	conf := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, conf)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(conf)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	conf.applyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.FPS == 0 {
		c.FPS = DefaultFPS
	}
	if c.Tensor == "" {
		c.Tensor = DefaultTensor
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Socket == "" {
		c.Socket = DefaultSocket
	}
	if c.PidFile == "" {
		c.PidFile = DefaultPidFile
	}
}

func (c *Config) Validate() error {
	if err := c.Capture().Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.FPS < 1 || c.FPS > 240 {
		return errors.Errorf("config: fps must be between 1 and 240, got %d", c.FPS)
	}
	if !validTensor(c.Tensor) {
		return errors.Errorf("config: tensor must be one of %v, got %q", TensorTypes, c.Tensor)
	}
	if c.CPU != nil && *c.CPU < 0 {
		return errors.Errorf("config: cpu must be >= 0, got %d", *c.CPU)
	}
	return nil
}

func validTensor(name string) bool {
	for _, t := range TensorTypes {
		if t == name {
			return true
		}
	}
	return false
}

// Capture returns the device part of the configuration.
func (c *Config) Capture() capture.Config {
	return capture.Config{
		DeviceIndex: c.Device,
		FrameWidth:  c.Width,
		FrameHeight: c.Height,
	}
}
