package optim

import (
	"math"

	"github.com/born-ml/texturize/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// The update folds bias correction into the step size and adds eps to the
// uncorrected root of the second moment:
//
//	m_t   = beta1 * m_{t-1} + (1-beta1) * g
//	v_t   = beta2 * v_{t-1} + (1-beta2) * g²
//	lr_t  = lr * sqrt(1 - beta2^t) / (1 - beta1^t)
//	param = param - lr_t * m_t / (sqrt(v_t) + eps)
//
// With a large eps the optimizer behaves like momentum SGD for small
// gradients, which keeps pixel updates stable at high learning rates.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	beta1 float32
	beta2 float32
	eps   float32
	t     int                                      // Timestep for bias correction
	m     map[*tensor.RawTensor]*tensor.RawTensor // First moment estimates
	v     map[*tensor.RawTensor]*tensor.RawTensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	Betas [2]float32 // Coefficients for computing running averages (default: [0.99, 0.999])
	Eps   float32    // Term for numerical stability (default: 0.1)
}

// NewAdam creates a new Adam optimizer.
//
// Default hyperparameters:
//   - Beta1: 0.99
//   - Beta2: 0.999
//   - Eps: 0.1
func NewAdam(config AdamConfig) *Adam {
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.99
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 0.1
	}

	return &Adam{
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     make(map[*tensor.RawTensor]*tensor.RawTensor),
		v:     make(map[*tensor.RawTensor]*tensor.RawTensor),
	}
}

// Step performs a single optimization step on param.
//
// Moment estimates are kept per parameter tensor, so the same optimizer may
// drive several parameters as long as each is stepped once per timestep.
func (a *Adam) Step(param, grad *tensor.RawTensor, lr float32) error {
	if err := checkShapes(param, grad); err != nil {
		return err
	}

	a.t++

	// lr_t = lr * sqrt(1 - beta2^t) / (1 - beta1^t)
	biasCorrection1 := 1.0 - math.Pow(float64(a.beta1), float64(a.t))
	biasCorrection2 := 1.0 - math.Pow(float64(a.beta2), float64(a.t))
	lrT := float32(float64(lr) * math.Sqrt(biasCorrection2) / biasCorrection1)

	m, ok := a.m[param]
	if !ok {
		m = tensor.MustRaw(param.Shape())
		a.m[param] = m
	}
	v, ok := a.v[param]
	if !ok {
		v = tensor.MustRaw(param.Shape())
		a.v[param] = v
	}

	a.updateParameter(param.Data(), grad.Data(), m.Data(), v.Data(), lrT)
	return nil
}

// updateParameter performs the Adam update for a single parameter.
func (a *Adam) updateParameter(paramData, gradData, mData, vData []float32, lrT float32) {
	for i := range paramData {
		g := gradData[i]

		mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
		vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

		paramData[i] -= lrT * mData[i] / (float32(math.Sqrt(float64(vData[i]))) + a.eps)
	}
}

// GetTimestep returns the current timestep.
func (a *Adam) GetTimestep() int {
	return a.t
}

// Reset discards moment estimates and the timestep.
func (a *Adam) Reset() {
	a.t = 0
	clear(a.m)
	clear(a.v)
}

var _ Optimizer = (*Adam)(nil)
