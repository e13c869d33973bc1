package flowimg

import (
	"log/slog"
	"sync"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/flow"
	"github.com/abihf/flowimg/pixel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// State is the lifecycle state of a WebcamNode.
type State int

const (
	Uninitialized State = iota
	Ready
	Failed
	ShutDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	case ShutDown:
		return "ShutDown"
	default:
		return "State(?)"
	}
}

// EmitError is returned by Update when a produced value could not be sent.
// Err is the *flow.ChannelError from the output port.
type EmitError struct {
	Port string
	Err  error
}

func (e *EmitError) Error() string {
	return "emit on " + e.Port + ": " + e.Err.Error()
}

func (e *EmitError) Unwrap() error { return e.Err }

// Stats counts what a WebcamNode has done since construction.
type Stats struct {
	Frames        uint64
	CaptureErrors uint64
	EmitErrors    uint64
}

// WebcamNode captures one frame per Update from a capture.Backend and sends
// it on Output.
//
// When Input has an upstream, every Update consumes one token from it and
// does nothing if none is queued. Without an upstream the node is a
// free-running producer.
//
// An Uninitialized node opens its backend on the first Update. Failed and
// ShutDown are terminal: Update returns capture.ErrNotReady and only a new
// node can capture again.
type WebcamNode[T any] struct {
	Input  *flow.Input[T]
	Output *flow.Output[*pixel.Image]

	id      uuid.UUID
	cfg     capture.Config
	backend capture.Backend
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	opened   bool
	released bool
	stats    Stats
}

var _ flow.Node = (*WebcamNode[struct{}])(nil)

// NewWebcamNode takes ownership of backend. cfg is copied.
func NewWebcamNode[T any](backend capture.Backend, cfg capture.Config) *WebcamNode[T] {
	id := uuid.New()
	return &WebcamNode[T]{
		Input:   flow.NewInput[T]("trigger"),
		Output:  flow.NewOutput[*pixel.Image]("frame"),
		id:      id,
		cfg:     cfg,
		backend: backend,
		log:     slog.With("node_id", id.String()),
	}
}

// ID identifies the node in logs.
func (n *WebcamNode[T]) ID() string { return n.id.String() }

// Config returns the configuration the node was built with.
func (n *WebcamNode[T]) Config() capture.Config { return n.cfg }

func (n *WebcamNode[T]) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *WebcamNode[T]) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

func (n *WebcamNode[T]) lifecycleErr(reason capture.Reason, op string) error {
	return &capture.LifecycleError{Reason: reason, Op: op, State: n.state.String()}
}

// Init opens the backend. It is only valid on an Uninitialized node.
func (n *WebcamNode[T]) Init() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != Uninitialized {
		return n.lifecycleErr(capture.InvalidTransition, "init")
	}
	return n.open()
}

func (n *WebcamNode[T]) open() error {
	if err := n.backend.Open(n.cfg); err != nil {
		n.state = Failed
		n.log.Error("webcam: open failed", "device", n.cfg.DeviceIndex, "error", err)
		return err
	}
	n.opened = true
	n.state = Ready
	n.log.Info("webcam: ready", "device", n.cfg.DeviceIndex,
		"width", n.cfg.FrameWidth, "height", n.cfg.FrameHeight)
	return nil
}

// Update captures and emits one frame.
func (n *WebcamNode[T]) Update() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Input.Upstream() {
		if _, err := n.Input.Next(); err != nil {
			return nil
		}
	}

	switch n.state {
	case Uninitialized:
		if err := n.open(); err != nil {
			return err
		}
	case Failed, ShutDown:
		return n.lifecycleErr(capture.NotReady, "update")
	}

	img, err := n.backend.CaptureFrame()
	if err != nil {
		n.stats.CaptureErrors++
		var cerr *capture.Error
		if errors.As(err, &cerr) && cerr.Fatal() {
			n.state = Failed
			n.log.Error("webcam: device lost", "device", n.cfg.DeviceIndex, "error", err)
		} else {
			n.log.Warn("webcam: capture failed", "device", n.cfg.DeviceIndex, "error", err)
		}
		return err
	}

	if err := n.Output.Send(img); err != nil {
		n.stats.EmitErrors++
		return &EmitError{Port: n.Output.Name(), Err: err}
	}
	n.stats.Frames++
	return nil
}

// Shutdown releases the backend and moves the node to ShutDown. It fails
// when nothing was ever opened or when the node is already shut down.
// A failed release leaves the node Failed and is never retried.
func (n *WebcamNode[T]) Shutdown() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == ShutDown {
		return n.lifecycleErr(capture.AlreadyShutDown, "shutdown")
	}
	if !n.opened {
		return n.lifecycleErr(capture.NoActiveDevice, "shutdown")
	}
	if n.released {
		return n.lifecycleErr(capture.AlreadyReleased, "shutdown")
	}
	return n.finish()
}

// Close releases the backend if the node still holds it. It is safe to call
// on every exit path and in any state.
func (n *WebcamNode[T]) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.opened || n.released {
		return nil
	}
	return n.finish()
}

func (n *WebcamNode[T]) finish() error {
	if err := n.release(); err != nil {
		n.state = Failed
		return err
	}
	n.state = ShutDown
	return nil
}

func (n *WebcamNode[T]) release() error {
	if n.released {
		return nil
	}
	n.released = true

	if err := n.backend.Release(); err != nil {
		n.log.Warn("webcam: release failed", "device", n.cfg.DeviceIndex, "error", err)
		return errors.Wrap(err, "webcam: release")
	}
	n.log.Info("webcam: released", "device", n.cfg.DeviceIndex, "frames", n.stats.Frames)
	return nil
}
