// Package pixel defines the canonical in-memory image value passed between
// capture, decode and tensor conversion.
package pixel

import (
	"fmt"

	"github.com/pkg/errors"
)

// Layout tags the pixel encoding of an Image.
type Layout uint8

const (
	Gray8 Layout = iota + 1
	GrayAlpha8
	Rgb8
	Rgba8
	Gray16
	GrayAlpha16
	Rgb16
	Rgba16
	Rgb32F
	Rgba32F
)

// Sample is the element type of a layout's sample buffer.
type Sample uint8

const (
	Uint8 Sample = iota + 1
	Uint16
	Float32
)

func (s Sample) String() string {
	switch s {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("Sample(%d)", uint8(s))
	}
}

// Layouts returns every supported layout in declaration order.
func Layouts() []Layout {
	return []Layout{
		Gray8, GrayAlpha8, Rgb8, Rgba8,
		Gray16, GrayAlpha16, Rgb16, Rgba16,
		Rgb32F, Rgba32F,
	}
}

// Valid reports whether l is one of the ten known layouts.
func (l Layout) Valid() bool {
	return l >= Gray8 && l <= Rgba32F
}

// Channels returns the number of samples per pixel.
func (l Layout) Channels() int {
	switch l {
	case Gray8, Gray16:
		return 1
	case GrayAlpha8, GrayAlpha16:
		return 2
	case Rgb8, Rgb16, Rgb32F:
		return 3
	case Rgba8, Rgba16, Rgba32F:
		return 4
	default:
		return 0
	}
}

// Sample returns the element type of the layout.
func (l Layout) Sample() Sample {
	switch l {
	case Gray8, GrayAlpha8, Rgb8, Rgba8:
		return Uint8
	case Gray16, GrayAlpha16, Rgb16, Rgba16:
		return Uint16
	case Rgb32F, Rgba32F:
		return Float32
	default:
		return 0
	}
}

// BytesPerSample returns the size of one sample in bytes.
func (l Layout) BytesPerSample() int {
	switch l.Sample() {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	default:
		return 0
	}
}

// HasAlpha reports whether the last channel is alpha.
func (l Layout) HasAlpha() bool {
	switch l {
	case GrayAlpha8, Rgba8, GrayAlpha16, Rgba16, Rgba32F:
		return true
	default:
		return false
	}
}

func (l Layout) String() string {
	switch l {
	case Gray8:
		return "Gray8"
	case GrayAlpha8:
		return "GrayAlpha8"
	case Rgb8:
		return "Rgb8"
	case Rgba8:
		return "Rgba8"
	case Gray16:
		return "Gray16"
	case GrayAlpha16:
		return "GrayAlpha16"
	case Rgb16:
		return "Rgb16"
	case Rgba16:
		return "Rgba16"
	case Rgb32F:
		return "Rgb32F"
	case Rgba32F:
		return "Rgba32F"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// Image is a tagged image value. Exactly one of U8, U16 or F32 holds the
// row-major samples, chosen by Layout.Sample(); the others are nil.
type Image struct {
	Layout Layout
	Width  int
	Height int

	U8  []uint8
	U16 []uint16
	F32 []float32
}

// New allocates a zeroed image.
func New(layout Layout, width, height int) (*Image, error) {
	if err := checkHeader(layout, width, height); err != nil {
		return nil, err
	}
	img := &Image{Layout: layout, Width: width, Height: height}
	n := width * height * layout.Channels()
	switch layout.Sample() {
	case Uint8:
		img.U8 = make([]uint8, n)
	case Uint16:
		img.U16 = make([]uint16, n)
	case Float32:
		img.F32 = make([]float32, n)
	}
	return img, nil
}

// FromU8 wraps pix without copying. The caller gives up ownership of pix.
func FromU8(layout Layout, width, height int, pix []uint8) (*Image, error) {
	img := &Image{Layout: layout, Width: width, Height: height, U8: pix}
	return img, img.Validate()
}

// FromU16 wraps pix without copying. The caller gives up ownership of pix.
func FromU16(layout Layout, width, height int, pix []uint16) (*Image, error) {
	img := &Image{Layout: layout, Width: width, Height: height, U16: pix}
	return img, img.Validate()
}

// FromF32 wraps pix without copying. The caller gives up ownership of pix.
func FromF32(layout Layout, width, height int, pix []float32) (*Image, error) {
	img := &Image{Layout: layout, Width: width, Height: height, F32: pix}
	return img, img.Validate()
}

func checkHeader(layout Layout, width, height int) error {
	if !layout.Valid() {
		return errors.Errorf("pixel: unknown layout %v", layout)
	}
	if width <= 0 || height <= 0 {
		return errors.Errorf("pixel: invalid size %dx%d", width, height)
	}
	return nil
}

// Validate checks the buffer invariant:
// len(samples) == Width * Height * Channels, with the unused slices nil.
func (m *Image) Validate() error {
	if m == nil {
		return errors.New("pixel: nil image")
	}
	if err := checkHeader(m.Layout, m.Width, m.Height); err != nil {
		return err
	}

	want := m.Width * m.Height * m.Layout.Channels()
	var got int
	var stray bool
	switch m.Layout.Sample() {
	case Uint8:
		got, stray = len(m.U8), m.U16 != nil || m.F32 != nil
	case Uint16:
		got, stray = len(m.U16), m.U8 != nil || m.F32 != nil
	case Float32:
		got, stray = len(m.F32), m.U8 != nil || m.U16 != nil
	}
	if stray {
		return errors.Errorf("pixel: %v image carries samples of another type", m.Layout)
	}
	if got != want {
		return errors.Errorf("pixel: %v %dx%d needs %d samples, got %d",
			m.Layout, m.Width, m.Height, want, got)
	}
	return nil
}

// Len returns the number of samples.
func (m *Image) Len() int {
	return m.Width * m.Height * m.Layout.Channels()
}

// ByteLen returns the size of the sample buffer in bytes.
func (m *Image) ByteLen() int {
	return m.Len() * m.Layout.BytesPerSample()
}

// Stride returns the number of samples in one row.
func (m *Image) Stride() int {
	return m.Width * m.Layout.Channels()
}

// Equal reports whether a and b have the same layout, size and samples.
func Equal(a, b *Image) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Layout != b.Layout || a.Width != b.Width || a.Height != b.Height {
		return false
	}
	return equalSlice(a.U8, b.U8) && equalSlice(a.U16, b.U16) && equalSlice(a.F32, b.F32)
}

func equalSlice[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
