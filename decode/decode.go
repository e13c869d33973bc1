// Package decode turns self-describing encoded image bytes into pixel.Image
// values. The format is detected from the content, never from a name or hint.
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	// Registered formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/abihf/flowimg/pixel"
	"github.com/pkg/errors"
)

// Sniff returns the name of the format data is encoded in.
func Sniff(data []byte) (format string, err error) {
	if len(data) == 0 {
		return "", &Error{Kind: UnrecognizedFormat, Err: errors.New("empty input")}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: CorruptData, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	_, format, err = image.DecodeConfig(bytes.NewReader(data))
	if err == image.ErrFormat {
		return "", &Error{Kind: UnrecognizedFormat, Err: err}
	}
	if err != nil {
		return format, &Error{Kind: CorruptData, Format: format, Err: err}
	}
	return format, nil
}

// Decode decodes one image. data is neither modified nor retained.
func Decode(data []byte) (img *pixel.Image, err error) {
	format, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = &Error{Kind: CorruptData, Format: format, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: CorruptData, Format: format, Err: err}
	}

	img, err = FromImage(decoded)
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			derr.Format = format
		}
		return nil, err
	}
	if format == "png" && pngColorType(data) == pngGrayAlpha {
		img = grayAlpha(img)
	}
	return img, nil
}

// image/png expands gray+alpha to NRGBA and NRGBA64.
const pngGrayAlpha = 4

// pngColorType reads the colour type byte of the IHDR chunk.
func pngColorType(data []byte) byte {
	if len(data) < 26 {
		return 0
	}
	return data[25]
}

// grayAlpha keeps R and A of every RGBA pixel.
func grayAlpha(img *pixel.Image) *pixel.Image {
	n := img.Width * img.Height
	switch img.Layout {
	case pixel.Rgba8:
		out := make([]uint8, 0, 2*n)
		for i := 0; i < n; i++ {
			out = append(out, img.U8[4*i], img.U8[4*i+3])
		}
		return &pixel.Image{Layout: pixel.GrayAlpha8, Width: img.Width, Height: img.Height, U8: out}
	case pixel.Rgba16:
		out := make([]uint16, 0, 2*n)
		for i := 0; i < n; i++ {
			out = append(out, img.U16[4*i], img.U16[4*i+3])
		}
		return &pixel.Image{Layout: pixel.GrayAlpha16, Width: img.Width, Height: img.Height, U16: out}
	}
	return img
}

// FromImage copies a Go image into the matching pixel layout.
func FromImage(src image.Image) (*pixel.Image, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, &Error{Kind: CorruptData, Err: errors.Errorf("empty bounds %v", b)}
	}

	switch m := src.(type) {
	case *image.Gray:
		out := make([]uint8, 0, w*h)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := m.PixOffset(b.Min.X, y)
			out = append(out, m.Pix[i:i+w]...)
		}
		return pixel.FromU8(pixel.Gray8, w, h, out)

	case *image.Gray16:
		out := make([]uint16, 0, w*h)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := m.PixOffset(b.Min.X, y)
			for x := 0; x < w; x++ {
				out = append(out, binary.BigEndian.Uint16(m.Pix[i+2*x:]))
			}
		}
		return pixel.FromU16(pixel.Gray16, w, h, out)

	case *image.RGBA:
		if m.Opaque() {
			return rgb8(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), w, h), nil
		}
		out := make([]uint8, 0, w*h*4)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := m.PixOffset(b.Min.X, y)
			for x := 0; x < w; x++ {
				p := m.Pix[i+4*x : i+4*x+4]
				out = append(out, unpremul8(p[0], p[3]), unpremul8(p[1], p[3]), unpremul8(p[2], p[3]), p[3])
			}
		}
		return pixel.FromU8(pixel.Rgba8, w, h, out)

	case *image.NRGBA:
		out := make([]uint8, 0, w*h*4)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := m.PixOffset(b.Min.X, y)
			out = append(out, m.Pix[i:i+4*w]...)
		}
		return pixel.FromU8(pixel.Rgba8, w, h, out)

	case *image.RGBA64:
		opaque := m.Opaque()
		layout := pixel.Rgba16
		if opaque {
			layout = pixel.Rgb16
		}
		out := make([]uint16, 0, w*h*layout.Channels())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := m.PixOffset(b.Min.X, y)
			for x := 0; x < w; x++ {
				p := m.Pix[i+8*x : i+8*x+8]
				r := binary.BigEndian.Uint16(p[0:])
				g := binary.BigEndian.Uint16(p[2:])
				bl := binary.BigEndian.Uint16(p[4:])
				a := binary.BigEndian.Uint16(p[6:])
				if opaque {
					out = append(out, r, g, bl)
					continue
				}
				out = append(out, unpremul16(r, a), unpremul16(g, a), unpremul16(bl, a), a)
			}
		}
		return pixel.FromU16(layout, w, h, out)

	case *image.NRGBA64:
		out := make([]uint16, 0, w*h*4)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := m.PixOffset(b.Min.X, y)
			for x := 0; x < 4*w; x++ {
				out = append(out, binary.BigEndian.Uint16(m.Pix[i+2*x:]))
			}
		}
		return pixel.FromU16(pixel.Rgba16, w, h, out)

	case *image.YCbCr:
		out := make([]uint8, 0, w*h*3)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl := color.YCbCrToRGB(m.Y[m.YOffset(x, y)], m.Cb[m.COffset(x, y)], m.Cr[m.COffset(x, y)])
				out = append(out, r, g, bl)
			}
		}
		return pixel.FromU8(pixel.Rgb8, w, h, out)

	case *image.NYCbCrA:
		out := make([]uint8, 0, w*h*4)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl := color.YCbCrToRGB(m.Y[m.YOffset(x, y)], m.Cb[m.COffset(x, y)], m.Cr[m.COffset(x, y)])
				out = append(out, r, g, bl, m.A[m.AOffset(x, y)])
			}
		}
		return pixel.FromU8(pixel.Rgba8, w, h, out)

	case *image.CMYK:
		out := make([]uint8, 0, w*h*3)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := m.PixOffset(b.Min.X, y)
			for x := 0; x < w; x++ {
				p := m.Pix[i+4*x : i+4*x+4]
				r, g, bl := color.CMYKToRGB(p[0], p[1], p[2], p[3])
				out = append(out, r, g, bl)
			}
		}
		return pixel.FromU8(pixel.Rgb8, w, h, out)

	default:
		return nil, &Error{Kind: UnsupportedLayout, Err: errors.Errorf("%T", src)}
	}
}

// rgb8 drops the alpha byte of an opaque RGBA buffer.
func rgb8(pix []uint8, stride, offset, w, h int) *pixel.Image {
	out := make([]uint8, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := pix[offset+y*stride:]
		for x := 0; x < w; x++ {
			out = append(out, row[4*x], row[4*x+1], row[4*x+2])
		}
	}
	return &pixel.Image{Layout: pixel.Rgb8, Width: w, Height: h, U8: out}
}

func unpremul8(c, a uint8) uint8 {
	if a == 0 {
		return 0
	}
	if c >= a {
		return 0xff
	}
	return uint8((uint32(c)*0xff + uint32(a)/2) / uint32(a))
}

func unpremul16(c, a uint16) uint16 {
	if a == 0 {
		return 0
	}
	if c >= a {
		return 0xffff
	}
	return uint16((uint32(c)*0xffff + uint32(a)/2) / uint32(a))
}
