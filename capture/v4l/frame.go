//go:build linux

package v4l

import (
	"image/color"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/pixel"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// FourCC codes, little endian.
const (
	formatYUYV  webcam.PixelFormat = 0x56595559
	formatMJPEG webcam.PixelFormat = 0x47504A4D
)

func formatName(f webcam.PixelFormat) string {
	switch f {
	case formatYUYV:
		return "YUYV"
	case formatMJPEG:
		return "MJPEG"
	default:
		return "unknown"
	}
}

// pickFormat prefers YUYV, which converts without a decode step.
func pickFormat(supported map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	for _, f := range []webcam.PixelFormat{formatYUYV, formatMJPEG} {
		if _, ok := supported[f]; ok {
			return f, true
		}
	}
	return 0, false
}

// blankLevel is the luma under which a sample counts as black.
const blankLevel = 16

// isBlank reports whether nearly every luma sample of a YUYV frame is black.
// Sensors deliver such frames while exposure settles.
func isBlank(yuyv []byte) bool {
	dark, total := 0, 0
	for i := 0; i < len(yuyv); i += 2 {
		total++
		if yuyv[i] < blankLevel {
			dark++
		}
	}
	if total == 0 {
		return true
	}
	return float64(dark)/float64(total) > 0.99
}

// yuyvToRGB converts packed 4:2:2 YUYV into Rgb8. Each 4-byte group
// Y0 U Y1 V covers two horizontally adjacent pixels.
func yuyvToRGB(src []byte, width, height int) (*pixel.Image, error) {
	if width%2 != 0 {
		return nil, errors.Errorf("YUYV width %d is odd", width)
	}
	if err := capture.CheckFrameSize(len(src), width, height, 2, 1); err != nil {
		return nil, err
	}

	out := make([]uint8, width*height*3)
	for i, j := 0, 0; i+3 < len(src); i, j = i+4, j+6 {
		y0, u, y1, v := src[i], src[i+1], src[i+2], src[i+3]
		out[j], out[j+1], out[j+2] = color.YCbCrToRGB(y0, u, v)
		out[j+3], out[j+4], out[j+5] = color.YCbCrToRGB(y1, u, v)
	}
	return pixel.FromU8(pixel.Rgb8, width, height, out)
}

// toRGB8 expands a grayscale decode result so every frame leaves the
// backend as Rgb8.
func toRGB8(img *pixel.Image) (*pixel.Image, error) {
	switch img.Layout {
	case pixel.Rgb8:
		return img, nil
	case pixel.Gray8:
		out := make([]uint8, 0, len(img.U8)*3)
		for _, v := range img.U8 {
			out = append(out, v, v, v)
		}
		return pixel.FromU8(pixel.Rgb8, img.Width, img.Height, out)
	default:
		return nil, errors.Errorf("unexpected MJPEG layout %v", img.Layout)
	}
}
