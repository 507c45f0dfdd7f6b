package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Batch returns the leading (batch) dimension, or 1 for a scalar.
func (s Shape) Batch() int {
	if len(s) == 0 {
		return 1
	}
	return s[0]
}

// PerBatch returns the number of elements in one batch entry.
func (s Shape) PerBatch() int {
	if len(s) == 0 {
		return 1
	}
	return s[1:].NumElements()
}

// WithBatch returns a copy of the shape with the leading dimension replaced.
func (s Shape) WithBatch(n int) Shape {
	out := s.Clone()
	if len(out) > 0 {
		out[0] = n
	}
	return out
}

// NHWC unpacks a 4D shape. It panics if the shape is not 4D.
func (s Shape) NHWC() (n, h, w, c int) {
	if len(s) != 4 {
		panic(fmt.Sprintf("expected 4D NHWC shape, got %v", s))
	}
	return s[0], s[1], s[2], s[3]
}
