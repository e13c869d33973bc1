package browser

import "github.com/pkg/errors"

// ErrTrackEnded is reported by a Stream whose video track has ended, for
// example because the user revoked camera access or unplugged the camera.
var ErrTrackEnded = errors.New("browser: video track ended")

// Settled is the outcome of an asynchronous browser call.
type Settled[T any] struct {
	Value T
	Err   error
}

// Constraints are passed to getUserMedia as ideal values; the browser may
// deliver a different size.
type Constraints struct {
	DeviceIndex int
	Width       int
	Height      int
}

// Frame is one RGBA snapshot of the video element.
type Frame struct {
	Width, Height int
	RGBA          []byte
	// BottomUp is set when rows are stored last row first.
	BottomUp bool
}

// Stream is an acquired camera.
type Stream interface {
	// NextFrame resolves once the next video frame has been presented.
	NextFrame() <-chan Settled[Frame]
	// Stop ends every track of the stream.
	Stop() error
}

// Bridge starts asynchronous camera requests. Every returned channel
// receives exactly one value.
type Bridge interface {
	RequestCamera(c Constraints) <-chan Settled[Stream]
}
