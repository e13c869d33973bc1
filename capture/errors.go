package capture

import (
	"fmt"
)

// Kind classifies a capture failure.
type Kind int

const (
	// DeviceOpen means the device could not be acquired.
	DeviceOpen Kind = iota + 1
	// DeviceNotReady means the device opened but did not deliver a first frame.
	DeviceNotReady
	// FrameRead means a single capture failed; the device may recover.
	FrameRead
	// DeviceLost means the device is gone and no further frame will arrive.
	DeviceLost
)

func (k Kind) String() string {
	switch k {
	case DeviceOpen:
		return "device open failed"
	case DeviceNotReady:
		return "device not ready"
	case FrameRead:
		return "frame read failed"
	case DeviceLost:
		return "device lost"
	default:
		return "unknown capture error"
	}
}

// Error is a backend failure. Err holds the library error, if any.
type Error struct {
	Kind    Kind
	Backend string
	Err     error
}

// Sentinels for errors.Is; they match on Kind.
var (
	ErrDeviceOpen     = &Error{Kind: DeviceOpen}
	ErrDeviceNotReady = &Error{Kind: DeviceNotReady}
	ErrFrameRead      = &Error{Kind: FrameRead}
	ErrDeviceLost     = &Error{Kind: DeviceLost}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Fatal reports whether the device cannot deliver any further frame.
func (e *Error) Fatal() bool { return e.Kind == DeviceLost }

// Reason classifies a LifecycleError.
type Reason int

const (
	// NotReady means an operation needed an initialized node or open device.
	NotReady Reason = iota + 1
	// NoActiveDevice means shutdown was requested but nothing was opened.
	NoActiveDevice
	// AlreadyShutDown means shutdown was requested twice.
	AlreadyShutDown
	// AlreadyReleased means a backend handle was released twice.
	AlreadyReleased
	// InvalidTransition means the state machine does not allow the call.
	InvalidTransition
)

func (r Reason) String() string {
	switch r {
	case NotReady:
		return "not ready"
	case NoActiveDevice:
		return "no active device"
	case AlreadyShutDown:
		return "already shut down"
	case AlreadyReleased:
		return "already released"
	case InvalidTransition:
		return "invalid transition"
	default:
		return "unknown"
	}
}

// LifecycleError reports an operation called in the wrong state.
type LifecycleError struct {
	Reason Reason
	Op     string
	State  string
}

var (
	ErrNotReady          = &LifecycleError{Reason: NotReady}
	ErrNoActiveDevice    = &LifecycleError{Reason: NoActiveDevice}
	ErrAlreadyShutDown   = &LifecycleError{Reason: AlreadyShutDown}
	ErrAlreadyReleased   = &LifecycleError{Reason: AlreadyReleased}
	ErrInvalidTransition = &LifecycleError{Reason: InvalidTransition}
)

func (e *LifecycleError) Error() string {
	switch {
	case e.Op != "" && e.State != "":
		return fmt.Sprintf("lifecycle: %s in state %s: %s", e.Op, e.State, e.Reason)
	case e.Op != "":
		return fmt.Sprintf("lifecycle: %s: %s", e.Op, e.Reason)
	default:
		return "lifecycle: " + e.Reason.String()
	}
}

func (e *LifecycleError) Is(target error) bool {
	t, ok := target.(*LifecycleError)
	return ok && t.Reason == e.Reason
}
