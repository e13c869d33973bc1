// Package tensor converts pixel.Image values into dense (height, width,
// channels) numeric arrays.
package tensor

import "fmt"

// Number is the set of element types a Tensor can hold.
type Number interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~float32 | ~float64
}

// Tensor is a dense row-major array with axes (height, width, channels).
type Tensor[T Number] struct {
	Shape [3]int
	Data  []T
}

// New allocates a zeroed tensor.
func New[T Number](height, width, channels int) *Tensor[T] {
	return &Tensor[T]{
		Shape: [3]int{height, width, channels},
		Data:  make([]T, height*width*channels),
	}
}

// Index returns the offset of (y, x, c) in Data.
func (t *Tensor[T]) Index(y, x, c int) int {
	return (y*t.Shape[1]+x)*t.Shape[2] + c
}

// At returns the element at (y, x, c).
func (t *Tensor[T]) At(y, x, c int) T {
	return t.Data[t.Index(y, x, c)]
}

// Set stores v at (y, x, c).
func (t *Tensor[T]) Set(y, x, c int, v T) {
	t.Data[t.Index(y, x, c)] = v
}

// Len returns the number of elements.
func (t *Tensor[T]) Len() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2]
}

func (t *Tensor[T]) String() string {
	return fmt.Sprintf("Tensor[%s](%dx%dx%d)", kindOf[T]().name, t.Shape[0], t.Shape[1], t.Shape[2])
}
