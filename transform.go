package flowimg

import (
	"github.com/abihf/flowimg/decode"
	"github.com/abihf/flowimg/flow"
	"github.com/abihf/flowimg/pixel"
	"github.com/abihf/flowimg/tensor"
	"github.com/pkg/errors"
)

// DecodeNode decodes one encoded image per Update.
type DecodeNode struct {
	Input  *flow.Input[[]byte]
	Output *flow.Output[*pixel.Image]
}

var _ flow.Node = (*DecodeNode)(nil)

func NewDecodeNode() *DecodeNode {
	return &DecodeNode{
		Input:  flow.NewInput[[]byte]("encoded"),
		Output: flow.NewOutput[*pixel.Image]("image"),
	}
}

func (n *DecodeNode) Init() error     { return nil }
func (n *DecodeNode) Shutdown() error { return nil }

// Update is a no-op when no buffer is queued. Decode errors are returned
// as *decode.Error.
func (n *DecodeNode) Update() error {
	data, err := n.Input.Next()
	if errors.Is(err, flow.ErrNothingAvailable) {
		return nil
	}
	img, err := decode.Decode(data)
	if err != nil {
		return err
	}
	if err := n.Output.Send(img); err != nil {
		return &EmitError{Port: n.Output.Name(), Err: err}
	}
	return nil
}

// TensorNode converts one image per Update into a Tensor[T]. The converter
// options are fixed at construction.
type TensorNode[T tensor.Number] struct {
	Input  *flow.Input[*pixel.Image]
	Output *flow.Output[*tensor.Tensor[T]]

	opts []tensor.Option
}

var _ flow.Node = (*TensorNode[float32])(nil)

func NewTensorNode[T tensor.Number](opts ...tensor.Option) *TensorNode[T] {
	return &TensorNode[T]{
		Input:  flow.NewInput[*pixel.Image]("image"),
		Output: flow.NewOutput[*tensor.Tensor[T]]("tensor"),
		opts:   opts,
	}
}

func (n *TensorNode[T]) Init() error     { return nil }
func (n *TensorNode[T]) Shutdown() error { return nil }

func (n *TensorNode[T]) Update() error {
	img, err := n.Input.Next()
	if errors.Is(err, flow.ErrNothingAvailable) {
		return nil
	}
	t, err := tensor.Convert[T](img, n.opts...)
	if err != nil {
		return err
	}
	if err := n.Output.Send(t); err != nil {
		return &EmitError{Port: n.Output.Name(), Err: err}
	}
	return nil
}

// SinkNode hands every received value to a callback.
type SinkNode[V any] struct {
	Input *flow.Input[V]

	fn func(V) error
}

func NewSinkNode[V any](fn func(V) error) *SinkNode[V] {
	return &SinkNode[V]{Input: flow.NewInput[V]("sink"), fn: fn}
}

func (n *SinkNode[V]) Init() error     { return nil }
func (n *SinkNode[V]) Shutdown() error { return nil }

// Update drains the input.
func (n *SinkNode[V]) Update() error {
	for {
		v, err := n.Input.Next()
		if err != nil {
			return nil
		}
		if err := n.fn(v); err != nil {
			return err
		}
	}
}
