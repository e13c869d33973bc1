package browser

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/abihf/flowimg/capture"
	"github.com/pkg/errors"
)

// fakeStream settles NextFrame from a script of frames and errors.
type fakeStream struct {
	mu      sync.Mutex
	frames  []Settled[Frame]
	delay   time.Duration
	stopped int
}

func (s *fakeStream) NextFrame() <-chan Settled[Frame] {
	ch := make(chan Settled[Frame], 1)
	s.mu.Lock()
	var next Settled[Frame]
	if len(s.frames) > 0 {
		next = s.frames[0]
		s.frames = s.frames[1:]
	} else {
		next = Settled[Frame]{Err: ErrTrackEnded}
	}
	delay := s.delay
	s.mu.Unlock()

	go func() {
		time.Sleep(delay)
		ch <- next
	}()
	return ch
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
	return nil
}

// fakeBridge resolves RequestCamera after delay, or never when hang is set.
type fakeBridge struct {
	stream *fakeStream
	err    error
	delay  time.Duration
	hang   bool
	got    Constraints
}

func (b *fakeBridge) RequestCamera(c Constraints) <-chan Settled[Stream] {
	b.got = c
	ch := make(chan Settled[Stream], 1)
	if b.hang {
		return ch
	}
	go func() {
		time.Sleep(b.delay)
		switch {
		case b.err != nil:
			ch <- Settled[Stream]{Err: b.err}
		case b.stream == nil:
			ch <- Settled[Stream]{}
		default:
			ch <- Settled[Stream]{Value: b.stream}
		}
	}()
	return ch
}

var cfg = capture.Config{DeviceIndex: 1, FrameWidth: 2, FrameHeight: 2}

// rgbaFrame is a 2x2 frame whose pixel value encodes its row.
func rgbaFrame(bottomUp bool) Frame {
	return Frame{
		Width:  2,
		Height: 2,
		RGBA: []byte{
			10, 11, 12, 255, 10, 11, 12, 255,
			20, 21, 22, 255, 20, 21, 22, 255,
		},
		BottomUp: bottomUp,
	}
}

func TestOpenWaitsForDelayedResolve(t *testing.T) {
	bridge := &fakeBridge{stream: &fakeStream{}, delay: 20 * time.Millisecond}
	b := New(bridge)

	start := time.Now()
	if err := b.Open(cfg); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Open returned before the request settled")
	}
	if bridge.got != (Constraints{DeviceIndex: 1, Width: 2, Height: 2}) {
		t.Errorf("unexpected constraints %+v", bridge.got)
	}
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name   string
		bridge *fakeBridge
		opts   []Option
		want   error
	}{
		{"rejected", &fakeBridge{err: errors.New("NotAllowedError: Permission denied")}, nil, capture.ErrDeviceOpen},
		{"timeout", &fakeBridge{hang: true}, []Option{WithTimeout(10 * time.Millisecond)}, capture.ErrDeviceNotReady},
		{"nil stream", &fakeBridge{}, nil, capture.ErrDeviceOpen},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := New(tc.bridge, tc.opts...).Open(cfg)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOpenTimeoutStopsLateStream(t *testing.T) {
	stream := &fakeStream{}
	b := New(&fakeBridge{stream: stream, delay: 50 * time.Millisecond}, WithTimeout(10*time.Millisecond))

	if err := b.Open(cfg); !errors.Is(err, capture.ErrDeviceNotReady) {
		t.Fatalf("Expected DeviceNotReady, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		stream.mu.Lock()
		stopped := stream.stopped
		stream.mu.Unlock()
		if stopped == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("late stream stopped %d times, want 1", stopped)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := b.Release(); !errors.Is(err, capture.ErrNoActiveDevice) {
		t.Errorf("Expected NoActiveDevice, got %v", err)
	}
}

func TestCaptureFrame(t *testing.T) {
	tests := []struct {
		name string
		in   Frame
		want []byte
	}{
		{"top down", rgbaFrame(false), []byte{10, 11, 12, 10, 11, 12, 20, 21, 22, 20, 21, 22}},
		{"bottom up", rgbaFrame(true), []byte{20, 21, 22, 20, 21, 22, 10, 11, 12, 10, 11, 12}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stream := &fakeStream{frames: []Settled[Frame]{{Value: tc.in}}, delay: 5 * time.Millisecond}
			b := New(&fakeBridge{stream: stream})
			if err := b.Open(cfg); err != nil {
				t.Fatal(err)
			}
			img, err := b.CaptureFrame()
			if err != nil {
				t.Fatalf("CaptureFrame failed: %v", err)
			}
			if !bytes.Equal(img.U8, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, img.U8)
			}
		})
	}
}

func TestCaptureFrameErrors(t *testing.T) {
	stream := &fakeStream{frames: []Settled[Frame]{
		{Err: errors.New("video has no dimensions yet")},
		{Value: Frame{Width: 2, Height: 2, RGBA: make([]byte, 3)}},
		{Err: ErrTrackEnded},
	}}
	b := New(&fakeBridge{stream: stream})
	if err := b.Open(cfg); err != nil {
		t.Fatal(err)
	}

	for i, want := range []error{capture.ErrFrameRead, capture.ErrFrameRead, capture.ErrDeviceLost} {
		if _, err := b.CaptureFrame(); !errors.Is(err, want) {
			t.Errorf("capture %d: expected %v, got %v", i, want, err)
		}
	}
}

func TestCaptureFrameTimeout(t *testing.T) {
	stream := &fakeStream{frames: []Settled[Frame]{{Value: rgbaFrame(false)}}, delay: time.Second}
	b := New(&fakeBridge{stream: stream}, WithTimeout(10*time.Millisecond))
	if err := b.Open(cfg); err != nil {
		t.Fatal(err)
	}
	_, err := b.CaptureFrame()
	if !errors.Is(err, capture.ErrFrameRead) || !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected timed out frame read, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	stream := &fakeStream{}
	b := New(&fakeBridge{stream: stream})

	if err := b.Release(); !errors.Is(err, capture.ErrNoActiveDevice) {
		t.Errorf("Expected ErrNoActiveDevice, got %v", err)
	}
	if err := b.Open(cfg); err != nil {
		t.Fatal(err)
	}
	if err := b.Release(); err != nil {
		t.Fatal(err)
	}
	if err := b.Release(); !errors.Is(err, capture.ErrAlreadyReleased) {
		t.Errorf("Expected ErrAlreadyReleased, got %v", err)
	}
	if stream.stopped != 1 {
		t.Errorf("Expected tracks stopped once, got %d", stream.stopped)
	}
	if _, err := b.CaptureFrame(); !errors.Is(err, capture.ErrNotReady) {
		t.Errorf("Expected ErrNotReady after release, got %v", err)
	}
	if err := b.Open(cfg); !errors.Is(err, capture.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}
