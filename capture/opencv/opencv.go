//go:build !js && opencv

// Package opencv is the synchronous capture backend built on gocv.
// CaptureFrame blocks inside VideoCapture.Read until the driver hands over
// the next frame.
package opencv

import (
	"log/slog"
	"sync"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/pixel"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Name is the registry name of this backend.
const Name = "opencv"

func init() {
	capture.Register(Name, func() capture.Backend { return New() })
}

// Backend wraps one gocv.VideoCapture.
type Backend struct {
	mu       sync.Mutex
	cam      *gocv.VideoCapture
	frame    gocv.Mat
	rgb      gocv.Mat
	device   int
	released bool
}

func New() *Backend {
	return &Backend{}
}

func deviceErr(kind capture.Kind, err error) error {
	return &capture.Error{Kind: kind, Backend: Name, Err: err}
}

// Open opens the device, applies the frame size and reads one frame to make
// sure the device actually delivers.
func (b *Backend) Open(cfg capture.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cam != nil || b.released {
		return &capture.LifecycleError{Reason: capture.InvalidTransition, Op: "open"}
	}
	if err := cfg.Validate(); err != nil {
		return deviceErr(capture.DeviceOpen, err)
	}

	cam, err := gocv.OpenVideoCapture(cfg.DeviceIndex)
	if err != nil {
		return deviceErr(capture.DeviceOpen, errors.Wrapf(err, "can not open device %d", cfg.DeviceIndex))
	}
	if !cam.IsOpened() {
		cam.Close()
		return deviceErr(capture.DeviceOpen, errors.Errorf("device %d could not be opened", cfg.DeviceIndex))
	}

	cam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.FrameWidth))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.FrameHeight))

	frame := gocv.NewMat()
	if ok := cam.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		cam.Close()
		return deviceErr(capture.DeviceNotReady, errors.Errorf("device %d delivered no first frame", cfg.DeviceIndex))
	}

	b.cam = cam
	b.frame = frame
	b.rgb = gocv.NewMat()
	b.device = cfg.DeviceIndex

	slog.Info("opencv: device opened", "device", cfg.DeviceIndex,
		"width", frame.Cols(), "height", frame.Rows(), "channels", frame.Channels())
	return nil
}

// CaptureFrame reads one frame and returns it as Rgb8.
func (b *Backend) CaptureFrame() (*pixel.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cam == nil || b.released {
		return nil, &capture.LifecycleError{Reason: capture.NotReady, Op: "capture"}
	}

	if ok := b.cam.Read(&b.frame); !ok {
		if !b.cam.IsOpened() {
			return nil, deviceErr(capture.DeviceLost, errors.Errorf("device %d closed", b.device))
		}
		return nil, deviceErr(capture.FrameRead, errors.New("could not read a new frame"))
	}
	if b.frame.Empty() {
		return nil, deviceErr(capture.FrameRead, errors.New("empty frame"))
	}

	var code gocv.ColorConversionCode
	switch b.frame.Channels() {
	case 1:
		code = gocv.ColorGrayToBGR
	case 3:
		code = gocv.ColorBGRToRGB
	case 4:
		code = gocv.ColorBGRAToRGB
	default:
		return nil, deviceErr(capture.FrameRead, errors.Errorf("unexpected channel count %d", b.frame.Channels()))
	}
	if err := gocv.CvtColor(b.frame, &b.rgb, code); err != nil {
		return nil, deviceErr(capture.FrameRead, errors.Wrap(err, "color conversion"))
	}
	if b.rgb.Empty() {
		return nil, deviceErr(capture.FrameRead, errors.New("color conversion failed"))
	}

	width, height := b.rgb.Cols(), b.rgb.Rows()
	data := b.rgb.ToBytes()
	if err := capture.CheckFrameSize(len(data), width, height, 3, 1); err != nil {
		return nil, deviceErr(capture.FrameRead, err)
	}

	img, err := pixel.FromU8(pixel.Rgb8, width, height, data)
	if err != nil {
		return nil, deviceErr(capture.FrameRead, err)
	}
	return img, nil
}

// Release closes the device and frees the Mats.
func (b *Backend) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return &capture.LifecycleError{Reason: capture.AlreadyReleased, Op: "release"}
	}
	if b.cam == nil {
		return &capture.LifecycleError{Reason: capture.NoActiveDevice, Op: "release"}
	}
	b.released = true

	b.frame.Close()
	b.rgb.Close()
	if err := b.cam.Close(); err != nil {
		return deviceErr(capture.DeviceLost, errors.Wrap(err, "close"))
	}
	slog.Info("opencv: device released", "device", b.device)
	return nil
}
