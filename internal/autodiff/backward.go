package autodiff

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// BackwardCapable is a backend that records onto a gradient tape.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// Tape returns the gradient tape for backward computation.
	Tape() *GradientTape
	// Inner returns the undecorated backend for untracked arithmetic.
	Inner() tensor.Backend
}

// Backward computes gradients of output seeded with ones.
//
// For a per-batch loss vector this is the gradient of its sum, which is the
// gradient every batch entry would receive from its own scalar loss.
func Backward(output *tensor.RawTensor, backend BackwardCapable) (map[*tensor.RawTensor]*tensor.RawTensor, error) {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		return nil, fmt.Errorf("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	seed, err := tensor.Full(output.Shape(), 1)
	if err != nil {
		return nil, fmt.Errorf("backward: failed to create output gradient: %w", err)
	}
	return tape.Backward(output, seed, backend.Inner()), nil
}

// Gradient computes ∂sum(output)/∂wrt and returns an error if wrt does not
// influence output.
func Gradient(output, wrt *tensor.RawTensor, backend BackwardCapable) (*tensor.RawTensor, error) {
	grads, err := Backward(output, backend)
	if err != nil {
		return nil, err
	}
	g, ok := grads[wrt]
	if !ok {
		return nil, fmt.Errorf("backward: %v does not contribute to the output", wrt)
	}
	if !g.Shape().Equal(wrt.Shape()) {
		return nil, fmt.Errorf("backward: gradient shape %v does not match %v", g.Shape(), wrt.Shape())
	}
	return g, nil
}
