//go:build linux

package v4l

import (
	"log/slog"
	"sync/atomic"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// waitSeconds is how long the reader blocks in WaitForFrame before it
// rechecks for a stop request.
const waitSeconds = 1

// maxWarmupFrames bounds how many blank frames are skipped after start.
const maxWarmupFrames = 30

var errStopped = errors.New("stream stopped")

// frameSource is the part of *webcam.Webcam the reader needs.
type frameSource interface {
	WaitForFrame(timeout uint32) error
	GetFrame() ([]byte, uint32, error)
	ReleaseFrame(index uint32) error
	StopStreaming() error
	Close() error
}

// stream owns a streaming device and keeps its most recent frame in a
// one-slot buffer. Older frames are overwritten, never queued.
type stream struct {
	src    frameSource
	device string
	format webcam.PixelFormat

	frames chan []byte
	done   chan struct{}
	err    error // set before done is closed

	closeErr error
	stopped  atomic.Bool
}

func newStream(src frameSource, device string, format webcam.PixelFormat) *stream {
	return &stream{
		src:    src,
		device: device,
		format: format,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

func (s *stream) start() {
	go func() {
		defer close(s.done)
		defer s.shutdown()

		if err := s.run(); err != nil {
			slog.Error("v4l2: reader stopped", "device", s.device, "error", err)
			s.err = err
		}
	}()
}

func (s *stream) run() error {
	warmup := maxWarmupFrames

	for !s.stopped.Load() {
		err := s.src.WaitForFrame(waitSeconds)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			slog.Debug("v4l2: frame wait timed out", "device", s.device)
			continue
		default:
			return errors.Wrap(err, "frame wait failed")
		}

		if s.stopped.Load() {
			break
		}

		buf, index, err := s.src.GetFrame()
		if err != nil {
			return errors.Wrap(err, "read frame failed")
		}
		// buf is the driver's mmap buffer and is reused once released
		frame := append([]byte(nil), buf...)
		if err := s.src.ReleaseFrame(index); err != nil {
			return errors.Wrap(err, "release frame failed")
		}

		if len(frame) == 0 {
			continue
		}
		if warmup > 0 && s.format == formatYUYV && isBlank(frame) {
			warmup--
			continue
		}
		warmup = 0

		s.publish(frame)
	}
	return nil
}

func (s *stream) publish(frame []byte) {
	select {
	case <-s.frames:
	default:
	}
	s.frames <- frame
}

func (s *stream) shutdown() {
	if err := s.src.StopStreaming(); err != nil {
		s.closeErr = errors.Wrap(err, "stop streaming")
	}
	if err := s.src.Close(); err != nil && s.closeErr == nil {
		s.closeErr = errors.Wrap(err, "close device")
	}
}

// next blocks until a frame is available or the reader has exited.
func (s *stream) next() ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		select {
		case f := <-s.frames:
			return f, nil
		default:
		}
		if s.err != nil {
			return nil, s.err
		}
		return nil, errStopped
	}
}

// stop asks the reader to exit and waits until the device is closed.
func (s *stream) stop() error {
	s.stopped.Store(true)
	<-s.done
	return s.closeErr
}
