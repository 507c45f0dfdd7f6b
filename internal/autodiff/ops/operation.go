// Package ops defines the differentiable operations recorded by the gradient tape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and maps an output gradient to input gradients. Backward returns one
// entry per input; a nil entry marks an input that receives no gradient
// (frozen extractor weights, constant mixing matrices).
package ops

import "github.com/born-ml/texturize/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// base holds the bookkeeping shared by every operation.
type base struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors.
func (b base) Inputs() []*tensor.RawTensor {
	return b.inputs
}

// Output returns the output tensor.
func (b base) Output() *tensor.RawTensor {
	return b.output
}
