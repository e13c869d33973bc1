package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/abihf/flowimg"
	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/config"
	"github.com/abihf/flowimg/flow"
	"github.com/abihf/flowimg/protocol"
	"github.com/abihf/flowimg/tensor"
	"github.com/abihf/flowimg/utils/thread"
	"github.com/pkg/errors"
)

// runner hides the tensor element type chosen in the config.
type runner interface {
	run(ctx context.Context, fps int, cpu *int)
	status() *protocol.StatusReport
	close() error
}

func newPipeline(backend capture.Backend, conf *config.Config) (runner, error) {
	switch conf.Tensor {
	case "uint8":
		return build[uint8](backend, conf)
	case "uint16":
		return build[uint16](backend, conf)
	case "int32":
		return build[int32](backend, conf)
	case "float32":
		return build[float32](backend, conf)
	case "float64":
		return build[float64](backend, conf)
	default:
		return nil, errors.Errorf("unsupported tensor type %q", conf.Tensor)
	}
}

// pipeline is camera -> tensor -> counter.
type pipeline[T tensor.Number] struct {
	backend string
	tensor  string

	cam  *flowimg.WebcamNode[struct{}]
	conv *flowimg.TensorNode[T]
	sink *flowimg.SinkNode[*tensor.Tensor[T]]

	tensors atomic.Uint64
}

func build[T tensor.Number](backend capture.Backend, conf *config.Config) (*pipeline[T], error) {
	p := &pipeline[T]{backend: conf.Backend, tensor: conf.Tensor}
	p.cam = flowimg.NewWebcamNode[struct{}](backend, conf.Capture())
	p.conv = flowimg.NewTensorNode[T]()
	p.sink = flowimg.NewSinkNode(func(t *tensor.Tensor[T]) error {
		if p.tensors.Add(1) == 1 {
			slog.Info("flowcamd: first tensor", "node_id", p.cam.ID(), "tensor", t.String())
		}
		return nil
	})

	if err := flow.Connect(p.cam.Output, p.conv.Input, flow.WithCapacity(2)); err != nil {
		return nil, err
	}
	if err := flow.Connect(p.conv.Output, p.sink.Input, flow.WithCapacity(2)); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pipeline[T]) run(ctx context.Context, fps int, cpu *int) {
	if cpu != nil {
		unpin, err := thread.Pin(*cpu)
		if err != nil {
			slog.Warn("flowcamd: can not pin capture loop", "cpu", *cpu, "error", err)
		} else {
			defer unpin()
		}
	}

	if err := p.cam.Init(); err != nil {
		slog.Error("flowcamd: camera init failed", "node_id", p.cam.ID(), "error", err)
	}

	nodes := []flow.Node{p.cam, p.conv, p.sink}
	flow.Drive(ctx, time.Second/time.Duration(fps), nodes, func(n flow.Node, err error) {
		if errors.Is(err, capture.ErrNotReady) {
			slog.Debug("flowcamd: update skipped", "node_id", p.cam.ID(), "error", err)
			return
		}
		slog.Warn("flowcamd: update failed", "node", p.nodeName(n), "error", err)
	})
}

func (p *pipeline[T]) nodeName(n flow.Node) string {
	switch n.(type) {
	case *flowimg.WebcamNode[struct{}]:
		return "webcam"
	case *flowimg.TensorNode[T]:
		return "tensor"
	default:
		return "sink"
	}
}

func (p *pipeline[T]) status() *protocol.StatusReport {
	st := p.cam.Stats()
	return &protocol.StatusReport{
		NodeID:        p.cam.ID(),
		Backend:       p.backend,
		State:         p.cam.State().String(),
		Tensor:        p.tensor,
		Frames:        st.Frames,
		CaptureErrors: st.CaptureErrors,
		EmitErrors:    st.EmitErrors,
		Tensors:       p.tensors.Load(),
	}
}

func (p *pipeline[T]) close() error {
	err := p.cam.Shutdown()
	if errors.Is(err, capture.ErrNoActiveDevice) || errors.Is(err, capture.ErrAlreadyShutDown) {
		err = nil
	}
	if cerr := p.cam.Close(); err == nil {
		err = cerr
	}
	return err
}
