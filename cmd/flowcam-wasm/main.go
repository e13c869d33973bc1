//go:build js && wasm

package main

import (
	"context"
	"log/slog"
	"syscall/js"
	"time"

	"github.com/abihf/flowimg"
	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/capture/browser"
	"github.com/abihf/flowimg/flow"
	"github.com/abihf/flowimg/internal/logging"
	"github.com/abihf/flowimg/tensor"
)

func main() {
	logging.Setup("info")

	cfg := capture.Config{FrameWidth: 640, FrameHeight: 480}
	if q := js.Global().Get("flowcamConfig"); q.Type() == js.TypeObject {
		cfg.DeviceIndex = q.Get("device").Int()
		cfg.FrameWidth = q.Get("width").Int()
		cfg.FrameHeight = q.Get("height").Int()
	}

	cam := flowimg.NewWebcamNode[struct{}](browser.New(browser.NewJSBridge()), cfg)
	defer cam.Close()
	conv := flowimg.NewTensorNode[float32]()

	frames := 0
	sink := flowimg.NewSinkNode(func(t *tensor.Tensor[float32]) error {
		frames++
		if frames%30 == 1 {
			slog.Info("browser: tensor", "tensor", t.String(), "frames", frames)
		}
		return nil
	})

	if err := flow.Connect(cam.Output, conv.Input); err != nil {
		slog.Error("browser: connect", "error", err)
		return
	}
	if err := flow.Connect(conv.Output, sink.Input); err != nil {
		slog.Error("browser: connect", "error", err)
		return
	}

	if err := cam.Init(); err != nil {
		slog.Error("browser: camera init failed", "error", err)
		return
	}

	flow.Drive(context.Background(), time.Second/15, []flow.Node{cam, conv, sink}, func(n flow.Node, err error) {
		slog.Warn("browser: update failed", "error", err)
	})
}
