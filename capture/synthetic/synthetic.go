// Package synthetic is a capture backend that renders a moving test
// pattern. It needs no hardware and produces the same frame sequence on
// every run.
package synthetic

import (
	"sync"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/pixel"
)

// Name is the registry name of this backend.
const Name = "synthetic"

func init() {
	capture.Register(Name, func() capture.Backend { return New() })
}

// Backend renders frame n as a diagonal gradient shifted by n pixels.
type Backend struct {
	mu       sync.Mutex
	cfg      capture.Config
	opened   bool
	released bool
	seq      int

	// FailAfter makes CaptureFrame report the device lost once this many
	// frames were delivered. Zero disables it.
	FailAfter int
}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Open(cfg capture.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opened || b.released {
		return &capture.LifecycleError{Reason: capture.InvalidTransition, Op: "open"}
	}
	if err := cfg.Validate(); err != nil {
		return &capture.Error{Kind: capture.DeviceOpen, Backend: Name, Err: err}
	}
	b.cfg = cfg
	b.opened = true
	return nil
}

func (b *Backend) CaptureFrame() (*pixel.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opened || b.released {
		return nil, &capture.LifecycleError{Reason: capture.NotReady, Op: "capture"}
	}
	if b.FailAfter > 0 && b.seq >= b.FailAfter {
		return nil, &capture.Error{Kind: capture.DeviceLost, Backend: Name}
	}

	img := Pattern(b.cfg.FrameWidth, b.cfg.FrameHeight, b.seq)
	b.seq++
	return img, nil
}

func (b *Backend) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return &capture.LifecycleError{Reason: capture.AlreadyReleased, Op: "release"}
	}
	if !b.opened {
		return &capture.LifecycleError{Reason: capture.NoActiveDevice, Op: "release"}
	}
	b.released = true
	return nil
}

// Pattern renders frame seq of a width x height Rgb8 test pattern.
// Red follows x, green follows y, blue follows the frame number.
func Pattern(width, height, seq int) *pixel.Image {
	out := make([]uint8, width*height*3)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out[i] = uint8(x + seq)
			out[i+1] = uint8(y + seq)
			out[i+2] = uint8(seq)
			i += 3
		}
	}
	return &pixel.Image{Layout: pixel.Rgb8, Width: width, Height: height, U8: out}
}
