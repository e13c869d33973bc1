//go:build linux

// Package v4l is the streaming capture backend for Video4Linux2 devices.
//
// A reader goroutine owns the device once streaming starts and keeps only
// the latest frame, so CaptureFrame never returns a stale backlog.
package v4l

import (
	"log/slog"
	"sync"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/decode"
	"github.com/abihf/flowimg/pixel"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// Name is the registry name of this backend.
const Name = "v4l2"

// probeSeconds bounds the wait for the first frame during Open.
const probeSeconds = 5

func init() {
	capture.Register(Name, func() capture.Backend { return New() })
}

// Backend streams from /dev/video<index>.
type Backend struct {
	mu       sync.Mutex
	stream   *stream
	width    int
	height   int
	released bool
}

// New returns an unopened backend.
func New() *Backend {
	return &Backend{}
}

func deviceErr(kind capture.Kind, err error) error {
	return &capture.Error{Kind: kind, Backend: Name, Err: err}
}

// Open negotiates YUYV or MJPEG at the requested size, starts streaming and
// waits for one frame before handing the device to the reader goroutine.
func (b *Backend) Open(cfg capture.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil || b.released {
		return &capture.LifecycleError{Reason: capture.InvalidTransition, Op: "open"}
	}
	if err := cfg.Validate(); err != nil {
		return deviceErr(capture.DeviceOpen, err)
	}

	device := cfg.DevicePath()
	cam, err := webcam.Open(device)
	if err != nil {
		return deviceErr(capture.DeviceOpen, errors.Wrapf(err, "can not open %s", device))
	}

	format, ok := pickFormat(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return deviceErr(capture.DeviceOpen, errors.Errorf("%s offers neither YUYV nor MJPEG", device))
	}

	format, w, h, err := cam.SetImageFormat(format, uint32(cfg.FrameWidth), uint32(cfg.FrameHeight))
	if err != nil {
		cam.Close()
		return deviceErr(capture.DeviceOpen, errors.Wrap(err, "can not set image format"))
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return deviceErr(capture.DeviceOpen, errors.Wrap(err, "can not start streaming"))
	}

	if err := probe(cam); err != nil {
		cam.StopStreaming()
		cam.Close()
		return deviceErr(capture.DeviceNotReady, err)
	}

	if int(w) != cfg.FrameWidth || int(h) != cfg.FrameHeight {
		slog.Warn("v4l2: driver adjusted frame size", "device", device,
			"requested_width", cfg.FrameWidth, "requested_height", cfg.FrameHeight,
			"width", w, "height", h)
	}

	b.width, b.height = int(w), int(h)
	b.stream = newStream(cam, device, format)
	b.stream.start()

	slog.Info("v4l2: streaming", "device", device, "format", formatName(format), "width", w, "height", h)
	return nil
}

// probe reads and discards one frame.
func probe(cam *webcam.Webcam) error {
	if err := cam.WaitForFrame(probeSeconds); err != nil {
		return errors.Wrap(err, "no first frame")
	}
	_, index, err := cam.GetFrame()
	if err != nil {
		return errors.Wrap(err, "can not read first frame")
	}
	return cam.ReleaseFrame(index)
}

// CaptureFrame blocks until the reader has a frame newer than the last one
// returned.
func (b *Backend) CaptureFrame() (*pixel.Image, error) {
	b.mu.Lock()
	s, released := b.stream, b.released
	width, height := b.width, b.height
	b.mu.Unlock()

	if s == nil || released {
		return nil, &capture.LifecycleError{Reason: capture.NotReady, Op: "capture"}
	}

	raw, err := s.next()
	if errors.Is(err, errStopped) {
		return nil, &capture.LifecycleError{Reason: capture.NotReady, Op: "capture"}
	}
	if err != nil {
		return nil, deviceErr(capture.DeviceLost, err)
	}

	var img *pixel.Image
	switch s.format {
	case formatYUYV:
		img, err = yuyvToRGB(raw, width, height)
	case formatMJPEG:
		img, err = decode.Decode(withHuffman(raw))
		if err == nil {
			img, err = toRGB8(img)
		}
	default:
		err = errors.Errorf("format %#x", uint32(s.format))
	}
	if err != nil {
		return nil, deviceErr(capture.FrameRead, err)
	}
	return img, nil
}

// Release stops the reader and closes the device.
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

	if err := b.stream.stop(); err != nil {
		return errors.Wrap(err, "v4l2: release")
	}
	slog.Info("v4l2: released", "device", b.stream.device)
	return nil
}
