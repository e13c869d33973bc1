// Package capture defines the camera backend contract shared by the native
// and browser implementations, the registry that selects one by name, and
// the error taxonomy every backend reports through.
//
// Every backend returns frames in canonical orientation: top-left origin,
// row-major, RGB channel order.
package capture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/abihf/flowimg/pixel"
	"github.com/pkg/errors"
)

// Config selects and sizes the device. It is copied by value into nodes and
// never mutated afterwards.
type Config struct {
	DeviceIndex int `json:"device_index" yaml:"device_index"`
	FrameWidth  int `json:"frame_width" yaml:"frame_width"`
	FrameHeight int `json:"frame_height" yaml:"frame_height"`
}

// Validate checks the requested geometry.
func (c Config) Validate() error {
	if c.DeviceIndex < 0 {
		return errors.Errorf("capture: negative device index %d", c.DeviceIndex)
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return errors.Errorf("capture: invalid frame size %dx%d", c.FrameWidth, c.FrameHeight)
	}
	return nil
}

// DevicePath is the V4L2 node for the configured index.
func (c Config) DevicePath() string {
	return fmt.Sprintf("/dev/video%d", c.DeviceIndex)
}

// Backend is one camera handle. Open is called at most once per value;
// Release closes whatever Open acquired and fails with ErrAlreadyReleased
// when called again.
type Backend interface {
	Open(cfg Config) error
	CaptureFrame() (*pixel.Image, error)
	Release() error
}

// Factory builds an unopened backend.
type Factory func() Backend

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under name. Backend packages call it
// from init; registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("capture: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("capture: Register called twice for backend " + name)
	}
	registry[name] = f
}

// New returns a fresh backend registered under name.
func New(name string) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("capture: unknown backend %q (have %v)", name, Backends())
	}
	return f(), nil
}

// Backends lists the registered names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckFrameSize validates a raw buffer length reported by a capture
// library against the geometry it claims.
func CheckFrameSize(got, width, height, channels, bytesPerSample int) error {
	want := width * height * channels * bytesPerSample
	if width <= 0 || height <= 0 || got != want {
		return errors.Errorf("frame size mismatch: got %d bytes, want %d for %dx%dx%d",
			got, want, width, height, channels)
	}
	return nil
}

// Processor receives each captured frame. Returning false stops Run.
type Processor func(frame *pixel.Image) (bool, error)

// MaxReadRetries bounds consecutive FrameRead errors tolerated by Run.
const MaxReadRetries = 10

// Run opens b, feeds every frame to fn until it returns false or an error,
// then releases b. Up to MaxReadRetries consecutive FrameRead errors are
// skipped.
func Run(b Backend, cfg Config, fn Processor) (err error) {
	if err := b.Open(cfg); err != nil {
		return err
	}
	defer func() {
		if rerr := b.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	failures := 0
	for {
		frame, err := b.CaptureFrame()
		if errors.Is(err, ErrFrameRead) && failures < MaxReadRetries {
			failures++
			continue
		}
		if err != nil {
			return err
		}
		failures = 0

		cont, err := fn(frame)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}
