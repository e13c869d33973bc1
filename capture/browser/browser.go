// Package browser is the capture backend for cameras reached through the
// browser's media APIs.
//
// The browser only offers asynchronous calls. Open and CaptureFrame park
// the calling goroutine on a channel receive until the Bridge settles, so
// callers see the same blocking contract as the native backends.
package browser

import (
	"log/slog"
	"sync"
	"time"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/pixel"
	"github.com/pkg/errors"
)

// Name is the registry name of this backend.
const Name = "browser"

// ErrTimeout is reported when a browser call does not settle in time.
var ErrTimeout = errors.New("browser: timed out")

// Option configures a Backend.
type Option func(*Backend)

// WithTimeout bounds every wait on the browser. Without it waits are
// unbounded, since a permission prompt can stay open indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) { b.timeout = d }
}

// Backend captures from a browser camera through a Bridge.
type Backend struct {
	bridge  Bridge
	timeout time.Duration

	mu       sync.Mutex
	stream   Stream
	released bool
}

// New returns an unopened backend.
func New(bridge Bridge, opts ...Option) *Backend {
	b := &Backend{bridge: bridge}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func await[T any](ch <-chan Settled[T], timeout time.Duration) (T, error) {
	if timeout <= 0 {
		r := <-ch
		return r.Value, r.Err
	}
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	}
}

func deviceErr(kind capture.Kind, err error) error {
	return &capture.Error{Kind: kind, Backend: Name, Err: err}
}

// Open requests the camera and waits until the video is playing.
// A rejected request (permission denied, no device) is DeviceOpen; a
// request that does not settle within the timeout is DeviceNotReady.
func (b *Backend) Open(cfg capture.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil || b.released {
		return &capture.LifecycleError{Reason: capture.InvalidTransition, Op: "open"}
	}
	if err := cfg.Validate(); err != nil {
		return deviceErr(capture.DeviceOpen, err)
	}

	req := b.bridge.RequestCamera(Constraints{
		DeviceIndex: cfg.DeviceIndex,
		Width:       cfg.FrameWidth,
		Height:      cfg.FrameHeight,
	})
	stream, err := await(req, b.timeout)
	if err == ErrTimeout {
		go stopLate(req)
		return deviceErr(capture.DeviceNotReady, err)
	}
	if err != nil {
		return deviceErr(capture.DeviceOpen, err)
	}
	if stream == nil {
		return deviceErr(capture.DeviceOpen, errors.New("bridge returned no stream"))
	}

	b.stream = stream
	slog.Info("browser: camera opened", "device", cfg.DeviceIndex, "width", cfg.FrameWidth, "height", cfg.FrameHeight)
	return nil
}

// stopLate stops a stream that resolves after Open has given up on it.
func stopLate(req <-chan Settled[Stream]) {
	r := <-req
	if r.Err != nil || r.Value == nil {
		return
	}
	if err := r.Value.Stop(); err != nil {
		slog.Warn("browser: can not stop late stream", "error", err)
		return
	}
	slog.Info("browser: stopped stream that resolved after timeout")
}

// CaptureFrame waits for the next presented frame and returns it as Rgb8
// with top-left origin.
func (b *Backend) CaptureFrame() (*pixel.Image, error) {
	b.mu.Lock()
	stream, released := b.stream, b.released
	b.mu.Unlock()

	if stream == nil || released {
		return nil, &capture.LifecycleError{Reason: capture.NotReady, Op: "capture"}
	}

	f, err := await(stream.NextFrame(), b.timeout)
	if errors.Is(err, ErrTrackEnded) {
		return nil, deviceErr(capture.DeviceLost, err)
	}
	if err != nil {
		return nil, deviceErr(capture.FrameRead, err)
	}

	img, err := toRGB(f)
	if err != nil {
		return nil, deviceErr(capture.FrameRead, err)
	}
	return img, nil
}

// Release stops the media tracks.
func (b *Backend) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return &capture.LifecycleError{Reason: capture.AlreadyReleased, Op: "release"}
	}
	if b.stream == nil {
		return &capture.LifecycleError{Reason: capture.NoActiveDevice, Op: "release"}
	}
	b.released = true

	if err := b.stream.Stop(); err != nil {
		return errors.Wrap(err, "browser: stop tracks")
	}
	slog.Info("browser: camera released")
	return nil
}

// toRGB drops alpha and flips bottom-up frames.
func toRGB(f Frame) (*pixel.Image, error) {
	if err := capture.CheckFrameSize(len(f.RGBA), f.Width, f.Height, 4, 1); err != nil {
		return nil, err
	}

	out := make([]uint8, f.Width*f.Height*3)
	rowIn, rowOut := f.Width*4, f.Width*3
	for y := 0; y < f.Height; y++ {
		srcY := y
		if f.BottomUp {
			srcY = f.Height - 1 - y
		}
		src := f.RGBA[srcY*rowIn : (srcY+1)*rowIn]
		dst := out[y*rowOut : (y+1)*rowOut]
		for x := 0; x < f.Width; x++ {
			dst[3*x] = src[4*x]
			dst[3*x+1] = src[4*x+1]
			dst[3*x+2] = src[4*x+2]
		}
	}
	return pixel.FromU8(pixel.Rgb8, f.Width, f.Height, out)
}
