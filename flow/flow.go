// Package flow provides the typed ports that processing nodes exchange
// values through.
//
// An Output is connected to exactly one Input by an edge holding a bounded
// FIFO queue. Values are moved across the edge: once sent, the producer must
// not touch the value again, which is why an output cannot fan out.
//
//	out := flow.NewOutput[*pixel.Image]("frame")
//	in := flow.NewInput[*pixel.Image]("image")
//	if err := flow.Connect(out, in); err != nil { ... }
//
//	out.Send(img)      // never blocks, fails with *ChannelError when full
//	img, err := in.Next() // ErrNothingAvailable when the queue is empty
//
// Scheduling is left to the host: Output.OnSend lets it learn that a
// downstream node has work to do.
package flow

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// DefaultCapacity is the queue length of an edge created without WithCapacity.
const DefaultCapacity = 16

// Reason says why a send failed.
type Reason int

const (
	// Disconnected means the output has no edge.
	Disconnected Reason = iota + 1
	// Full means the edge queue is at capacity.
	Full
	// Closed means the edge was closed by either side.
	Closed
)

func (r Reason) String() string {
	switch r {
	case Disconnected:
		return "disconnected"
	case Full:
		return "full"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ChannelError is returned by Send.
type ChannelError struct {
	Port   string
	Reason Reason
}

// Sentinels matched by errors.Is on Reason alone.
var (
	ErrDisconnected = &ChannelError{Reason: Disconnected}
	ErrFull         = &ChannelError{Reason: Full}
	ErrClosed       = &ChannelError{Reason: Closed}
)

var (
	// ErrNothingAvailable is returned by Input.Next when no value is queued.
	ErrNothingAvailable = errors.New("flow: nothing available")

	// ErrAlreadyConnected is returned by Connect when either port has an edge.
	ErrAlreadyConnected = errors.New("flow: port already connected")
)

func (e *ChannelError) Error() string {
	if e.Port == "" {
		return "flow: send: " + e.Reason.String()
	}
	return fmt.Sprintf("flow: send on %q: %s", e.Port, e.Reason)
}

func (e *ChannelError) Is(target error) bool {
	t, ok := target.(*ChannelError)
	return ok && t.Reason == e.Reason
}

// Node is the lifecycle every processing node exposes to the host.
type Node interface {
	Init() error
	Update() error
	Shutdown() error
}

type edge[T any] struct {
	mu       sync.Mutex
	queue    []T
	capacity int
	closed   bool
}

func newEdge[T any](capacity int) *edge[T] {
	return &edge[T]{queue: make([]T, 0, capacity), capacity: capacity}
}

func (e *edge[T]) push(port string, v T) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return &ChannelError{Port: port, Reason: Closed}
	}
	if len(e.queue) >= e.capacity {
		return &ChannelError{Port: port, Reason: Full}
	}
	e.queue = append(e.queue, v)
	return nil
}

func (e *edge[T]) pop() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero T
	if len(e.queue) == 0 {
		return zero, false
	}
	v := e.queue[0]
	e.queue[0] = zero
	e.queue = e.queue[1:]
	return v, true
}

func (e *edge[T]) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *edge[T]) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Output is the sending side of a port.
type Output[T any] struct {
	name string

	mu     sync.RWMutex
	edge   *edge[T]
	notify func()

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewOutput creates an unconnected output.
func NewOutput[T any](name string) *Output[T] {
	return &Output[T]{name: name}
}

// Name returns the port name.
func (o *Output[T]) Name() string { return o.name }

// Send moves v onto the edge. It never blocks.
func (o *Output[T]) Send(v T) error {
	o.mu.RLock()
	e, notify := o.edge, o.notify
	o.mu.RUnlock()

	if e == nil {
		o.dropped.Add(1)
		return &ChannelError{Port: o.name, Reason: Disconnected}
	}
	if err := e.push(o.name, v); err != nil {
		o.dropped.Add(1)
		return err
	}
	o.sent.Add(1)
	if notify != nil {
		notify()
	}
	return nil
}

// OnSend registers fn to run after every successful Send.
func (o *Output[T]) OnSend(fn func()) {
	o.mu.Lock()
	o.notify = fn
	o.mu.Unlock()
}

// Connected reports whether the output has an edge.
func (o *Output[T]) Connected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.edge != nil
}

// Close closes the edge. Later sends fail with Closed; values already queued
// can still be received.
func (o *Output[T]) Close() {
	o.mu.RLock()
	e := o.edge
	o.mu.RUnlock()
	if e != nil {
		e.close()
	}
}

// Stats returns the number of values sent and rejected.
func (o *Output[T]) Stats() (sent, dropped uint64) {
	return o.sent.Load(), o.dropped.Load()
}

// Input is the receiving side of a port.
type Input[T any] struct {
	name string

	mu   sync.Mutex
	edge *edge[T]
}

// NewInput creates an input with no upstream.
func NewInput[T any](name string) *Input[T] {
	return &Input[T]{name: name}
}

// Name returns the port name.
func (i *Input[T]) Name() string { return i.name }

// Next returns the oldest queued value.
func (i *Input[T]) Next() (T, error) {
	i.mu.Lock()
	e := i.edge
	i.mu.Unlock()

	if e != nil {
		if v, ok := e.pop(); ok {
			return v, nil
		}
	}
	var zero T
	return zero, ErrNothingAvailable
}

// Send queues v directly on the input, for hosts that feed a node without
// an upstream node. The first call gives the input an upstream.
func (i *Input[T]) Send(v T) error {
	i.mu.Lock()
	if i.edge == nil {
		i.edge = newEdge[T](DefaultCapacity)
	}
	e := i.edge
	i.mu.Unlock()
	return e.push(i.name, v)
}

// Upstream reports whether anything can deliver values to this input.
func (i *Input[T]) Upstream() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.edge != nil
}

// Pending returns the number of queued values.
func (i *Input[T]) Pending() int {
	i.mu.Lock()
	e := i.edge
	i.mu.Unlock()
	if e == nil {
		return 0
	}
	return e.len()
}

// ConnectOption configures Connect.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	capacity int
}

// WithCapacity sets the queue length of the edge.
func WithCapacity(n int) ConnectOption {
	return func(o *connectOptions) { o.capacity = n }
}

// Connect links out to in. Each port takes part in at most one edge.
func Connect[T any](out *Output[T], in *Input[T], opts ...ConnectOption) error {
	o := connectOptions{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		return errors.Errorf("flow: invalid capacity %d", o.capacity)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	in.mu.Lock()
	defer in.mu.Unlock()

	if out.edge != nil || in.edge != nil {
		return errors.Wrapf(ErrAlreadyConnected, "%s -> %s", out.name, in.name)
	}
	e := newEdge[T](o.capacity)
	out.edge = e
	in.edge = e
	return nil
}
