//go:build linux

package v4l

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/pixel"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

func TestYUYVToRGB(t *testing.T) {
	// two pixels: black then white, neutral chroma
	img, err := yuyvToRGB([]byte{0, 128, 255, 128}, 2, 1)
	if err != nil {
		t.Fatalf("yuyvToRGB failed: %v", err)
	}
	if img.Layout != pixel.Rgb8 || img.Width != 2 || img.Height != 1 {
		t.Fatalf("Expected 2x1 Rgb8, got %v %dx%d", img.Layout, img.Width, img.Height)
	}
	want := []uint8{0, 0, 0, 255, 255, 255}
	if !bytes.Equal(img.U8, want) {
		t.Errorf("Expected %v, got %v", want, img.U8)
	}
}

func TestYUYVToRGBRejectsBadSizes(t *testing.T) {
	tests := []struct {
		name          string
		data          []byte
		width, height int
	}{
		{"short", make([]byte, 6), 2, 2},
		{"long", make([]byte, 10), 2, 2},
		{"odd width", make([]byte, 6), 3, 1},
		{"zero", nil, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := yuyvToRGB(tc.data, tc.width, tc.height); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestPickFormat(t *testing.T) {
	tests := []struct {
		name      string
		supported map[webcam.PixelFormat]string
		want      webcam.PixelFormat
		ok        bool
	}{
		{"both", map[webcam.PixelFormat]string{formatMJPEG: "MJPEG", formatYUYV: "YUYV"}, formatYUYV, true},
		{"mjpeg only", map[webcam.PixelFormat]string{formatMJPEG: "MJPEG"}, formatMJPEG, true},
		{"neither", map[webcam.PixelFormat]string{0x32315559: "YU12"}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := pickFormat(tc.supported)
			if got != tc.want || ok != tc.ok {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tc.want, tc.ok, got, ok)
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	black := make([]byte, 64)
	for i := 1; i < len(black); i += 2 {
		black[i] = 128
	}
	lit := append([]byte(nil), black...)
	for i := 0; i < len(lit); i += 2 {
		lit[i] = 100
	}

	if !isBlank(black) {
		t.Error("black frame should be blank")
	}
	if isBlank(lit) {
		t.Error("lit frame should not be blank")
	}
	if !isBlank(nil) {
		t.Error("empty frame should be blank")
	}
}

func TestToRGB8(t *testing.T) {
	gray, _ := pixel.FromU8(pixel.Gray8, 2, 1, []uint8{7, 9})
	got, err := toRGB8(gray)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.U8, []uint8{7, 7, 7, 9, 9, 9}) {
		t.Errorf("Expected gray expanded to RGB, got %v", got.U8)
	}
	rgba, _ := pixel.New(pixel.Rgba8, 1, 1)
	if _, err := toRGB8(rgba); err == nil {
		t.Error("Expected error for Rgba8")
	}
}

// fakeSource replays a scripted sequence of frames and errors.
type fakeSource struct {
	mu      sync.Mutex
	script  []fakeStep
	pending []byte
	closed  bool
	// idle is returned once the script is exhausted
	idle error
}

type fakeStep struct {
	frame []byte
	err   error
}

func (f *fakeSource) WaitForFrame(uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		time.Sleep(time.Millisecond)
		return f.idle
	}
	step := f.script[0]
	f.script = f.script[1:]
	if step.err != nil {
		return step.err
	}
	f.pending = step.frame
	return nil
}

func (f *fakeSource) GetFrame() ([]byte, uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, 0, nil
}

func (f *fakeSource) ReleaseFrame(uint32) error { return nil }
func (f *fakeSource) StopStreaming() error      { return nil }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func waitDone(t *testing.T, s *stream) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for reader to exit")
	}
}

func TestStreamKeepsLatestFrame(t *testing.T) {
	lost := errors.New("no such device")
	src := &fakeSource{script: []fakeStep{
		{frame: []byte("frame-1")},
		{err: &webcam.Timeout{}},
		{frame: []byte("frame-2")},
		{frame: []byte("frame-3")},
		{err: lost},
	}}

	s := newStream(src, "/dev/fake", formatMJPEG)
	s.start()
	waitDone(t, s)

	got, err := s.next()
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if string(got) != "frame-3" {
		t.Errorf("Expected latest frame-3, got %q", got)
	}

	if _, err := s.next(); errors.Cause(err) != lost {
		t.Errorf("Expected device error, got %v", err)
	}
	if !src.isClosed() {
		t.Error("source not closed after reader exit")
	}
}

func TestStreamSkipsBlankWarmup(t *testing.T) {
	blank := []byte{0, 128, 0, 128}
	lit := []byte{90, 128, 90, 128}
	src := &fakeSource{
		script: []fakeStep{{frame: blank}, {frame: blank}, {frame: lit}},
		idle:   errors.New("done"),
	}

	s := newStream(src, "/dev/fake", formatYUYV)
	s.start()
	waitDone(t, s)

	got, err := s.next()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, lit) {
		t.Errorf("Expected lit frame, got %v", got)
	}
}

func TestStreamStop(t *testing.T) {
	src := &fakeSource{idle: &webcam.Timeout{}}
	s := newStream(src, "/dev/fake", formatYUYV)
	s.start()

	stopped := make(chan error, 1)
	go func() { stopped <- s.stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("stop returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	if !src.isClosed() {
		t.Error("source not closed")
	}
	if _, err := s.next(); !errors.Is(err, errStopped) {
		t.Errorf("Expected errStopped, got %v", err)
	}
}

func TestBackendLifecycleWithoutDevice(t *testing.T) {
	b := New()
	if _, err := b.CaptureFrame(); !errors.Is(err, capture.ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
	if err := b.Release(); !errors.Is(err, capture.ErrNoActiveDevice) {
		t.Errorf("Expected ErrNoActiveDevice, got %v", err)
	}
	err := b.Open(capture.Config{DeviceIndex: 0, FrameWidth: 0, FrameHeight: 480})
	if !errors.Is(err, capture.ErrDeviceOpen) {
		t.Errorf("Expected ErrDeviceOpen for invalid size, got %v", err)
	}
}

func TestRegistered(t *testing.T) {
	b, err := capture.New(Name)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*Backend); !ok {
		t.Errorf("Expected *Backend, got %T", b)
	}
}
