package tensor

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/abihf/flowimg/pixel"
	"github.com/pkg/errors"
)

// Reason classifies a ConversionError.
type Reason int

const (
	// UnsupportedPixelLayout means the layout is not accepted by this conversion.
	UnsupportedPixelLayout Reason = iota + 1
	// Narrowing means the element type cannot hold every source sample value.
	Narrowing
)

func (r Reason) String() string {
	switch r {
	case UnsupportedPixelLayout:
		return "unsupported pixel layout"
	case Narrowing:
		return "narrowing conversion"
	default:
		return "unknown"
	}
}

// ConversionError is returned by Convert.
type ConversionError struct {
	Layout pixel.Layout
	Target string
	Reason Reason
}

// Sentinels for errors.Is; they match any *ConversionError with the same Reason.
var (
	ErrUnsupportedPixelLayout = &ConversionError{Reason: UnsupportedPixelLayout}
	ErrNarrowing              = &ConversionError{Reason: Narrowing}
)

func (e *ConversionError) Error() string {
	return fmt.Sprintf("tensor: %s: %v to %s", e.Reason, e.Layout, e.Target)
}

func (e *ConversionError) Is(target error) bool {
	t, ok := target.(*ConversionError)
	return ok && t.Reason == e.Reason
}

type options struct {
	layouts   map[pixel.Layout]bool
	narrowing bool
}

// Option configures Convert.
type Option func(*options)

// WithLayouts restricts the accepted source layouts.
func WithLayouts(layouts ...pixel.Layout) Option {
	return func(o *options) {
		o.layouts = make(map[pixel.Layout]bool, len(layouts))
		for _, l := range layouts {
			o.layouts[l] = true
		}
	}
}

// AllowNarrowing permits element types that cannot represent every source
// value. Integer targets saturate, float sources truncate toward zero.
func AllowNarrowing() Option {
	return func(o *options) { o.narrowing = true }
}

// Convert widens img into a new tensor of element type T. Shape is
// (Height, Width, Channels) and elements keep the source memory order.
// Values are not rescaled: Gray8 becomes [0, 255] in any T.
func Convert[T Number](img *pixel.Image, opts ...Option) (*Tensor[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := img.Validate(); err != nil {
		return nil, errors.Wrap(err, "tensor: invalid image")
	}

	tgt := kindOf[T]()
	if o.layouts != nil && !o.layouts[img.Layout] {
		return nil, &ConversionError{Layout: img.Layout, Target: tgt.name, Reason: UnsupportedPixelLayout}
	}
	lossy := !tgt.holds(img.Layout.Sample())
	if lossy && !o.narrowing {
		return nil, &ConversionError{Layout: img.Layout, Target: tgt.name, Reason: Narrowing}
	}

	out := New[T](img.Height, img.Width, img.Layout.Channels())
	switch img.Layout {
	case pixel.Gray8, pixel.GrayAlpha8, pixel.Rgb8, pixel.Rgba8:
		widen(out.Data, img.U8, tgt, lossy)
	case pixel.Gray16, pixel.GrayAlpha16, pixel.Rgb16, pixel.Rgba16:
		widen(out.Data, img.U16, tgt, lossy)
	case pixel.Rgb32F, pixel.Rgba32F:
		widen(out.Data, img.F32, tgt, lossy)
	default:
		return nil, &ConversionError{Layout: img.Layout, Target: tgt.name, Reason: UnsupportedPixelLayout}
	}
	return out, nil
}

func widen[S uint8 | uint16 | float32, T Number](dst []T, src []S, tgt target, lossy bool) {
	if !lossy {
		for i, v := range src {
			dst[i] = T(v)
		}
		return
	}
	for i, v := range src {
		dst[i] = saturate[T](float64(v), tgt)
	}
}

func saturate[T Number](v float64, tgt target) T {
	if tgt.float {
		return T(v)
	}
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if v < tgt.min {
		v = tgt.min
	}
	if v > tgt.max {
		v = tgt.max
	}
	return T(v)
}

// target describes the numeric range of an element type.
type target struct {
	name     string
	float    bool
	signed   bool
	bits     int
	min, max float64
}

// holds reports whether every value of s is exactly representable.
func (t target) holds(s pixel.Sample) bool {
	if t.float {
		// float32 is exact for every uint16 value
		return true
	}
	switch s {
	case pixel.Uint8:
		return t.bits > 8 || !t.signed
	case pixel.Uint16:
		return t.bits > 16 || (t.bits == 16 && !t.signed)
	default:
		return false
	}
}

func kindOf[T Number]() target {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	t := target{name: typ.String()}
	switch typ.Kind() {
	case reflect.Uint8:
		t.bits, t.max = 8, math.MaxUint8
	case reflect.Uint16:
		t.bits, t.max = 16, math.MaxUint16
	case reflect.Uint32:
		t.bits, t.max = 32, math.MaxUint32
	case reflect.Uint64:
		t.bits, t.max = 64, math.Nextafter(math.MaxUint64, 0)
	case reflect.Uint:
		t.bits = strconv.IntSize
		t.max = math.Nextafter(math.Ldexp(1, strconv.IntSize), 0)
	case reflect.Int8:
		t.signed, t.bits, t.min, t.max = true, 8, math.MinInt8, math.MaxInt8
	case reflect.Int16:
		t.signed, t.bits, t.min, t.max = true, 16, math.MinInt16, math.MaxInt16
	case reflect.Int32:
		t.signed, t.bits, t.min, t.max = true, 32, math.MinInt32, math.MaxInt32
	case reflect.Int64:
		t.signed, t.bits, t.min, t.max = true, 64, math.MinInt64, math.Nextafter(math.MaxInt64, 0)
	case reflect.Int:
		t.signed, t.bits = true, strconv.IntSize
		t.min = -math.Ldexp(1, strconv.IntSize-1)
		t.max = math.Nextafter(math.Ldexp(1, strconv.IntSize-1), 0)
	case reflect.Float32, reflect.Float64:
		t.float = true
	}
	return t
}
