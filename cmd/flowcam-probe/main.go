package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/config"
	"github.com/abihf/flowimg/internal/logging"
	"github.com/abihf/flowimg/pixel"

	_ "github.com/abihf/flowimg/capture/synthetic"
)

func main() {
	conf := config.Load()
	backend := flag.String("backend", conf.Backend, "capture backend")
	device := flag.Int("device", conf.Device, "device index")
	width := flag.Int("width", conf.Width, "frame width")
	height := flag.Int("height", conf.Height, "frame height")
	frames := flag.Int("frames", 10, "number of frames to capture")
	list := flag.Bool("list", false, "list backends and exit")
	flag.Parse()

	logging.Setup(conf.LogLevel)

	if *list {
		for _, name := range capture.Backends() {
			fmt.Println(name)
		}
		return
	}

	if err := probe(*backend, capture.Config{DeviceIndex: *device, FrameWidth: *width, FrameHeight: *height}, *frames); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func probe(name string, cfg capture.Config, count int) error {
	b, err := capture.New(name)
	if err != nil {
		return err
	}

	n := 0
	last := time.Now()
	return capture.Run(b, cfg, func(frame *pixel.Image) (bool, error) {
		now := time.Now()
		fmt.Printf("  - frame %d: %v %dx%d mean %.1f (%v)\n",
			n, frame.Layout, frame.Width, frame.Height, mean(frame), now.Sub(last).Round(time.Millisecond))
		last = now
		n++
		return n < count, nil
	})
}

func mean(img *pixel.Image) float64 {
	var sum float64
	switch img.Layout.Sample() {
	case pixel.Uint8:
		for _, v := range img.U8 {
			sum += float64(v)
		}
	case pixel.Uint16:
		for _, v := range img.U16 {
			sum += float64(v)
		}
	case pixel.Float32:
		for _, v := range img.F32 {
			sum += float64(v)
		}
	}
	if img.Len() == 0 {
		return 0
	}
	return sum / float64(img.Len())
}
