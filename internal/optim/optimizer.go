// Package optim implements the optimizers that update the candidate image.
//
// Optimizers update a single parameter tensor in place from its gradient.
// The learning rate is supplied on every step so that schedules live with
// the caller:
//
//	adam := optim.NewAdam(optim.AdamConfig{})
//	for i := range iterations {
//	    grad := computeGradient(candidate)
//	    if err := adam.Step(candidate, grad, lr); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to param in place using grad and learning rate lr.
	//
	// Returns an error if grad does not match param's shape.
	Step(param, grad *tensor.RawTensor, lr float32) error

	// GetTimestep returns the number of steps taken.
	GetTimestep() int

	// Reset discards all accumulated state.
	Reset()
}

// checkShapes validates that a gradient can update a parameter.
func checkShapes(param, grad *tensor.RawTensor) error {
	if param == nil || grad == nil {
		return fmt.Errorf("optim: nil parameter or gradient")
	}
	if !param.Shape().Equal(grad.Shape()) {
		return fmt.Errorf("optim: gradient shape %v does not match parameter shape %v", grad.Shape(), param.Shape())
	}
	return nil
}
