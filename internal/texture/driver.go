package texture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/born-ml/texturize/internal/autodiff"
	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/optim"
	"github.com/born-ml/texturize/internal/tensor"
	"github.com/born-ml/texturize/internal/vgg"
)

// State is the lifecycle stage of a Driver.
type State int32

// Driver states.
const (
	Initializing State = iota
	Iterating
	Terminated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Iterating:
		return "iterating"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Progress is a snapshot handed to a Reporter.
type Progress struct {
	Iteration    int
	LearningRate float64
	Loss         *Loss
	// Candidate is the live normalized candidate. Reporters must not
	// modify it or keep it past Report.
	Candidate *tensor.RawTensor
}

// Reporter receives periodic progress. Report is called on the driver's
// goroutine and blocks the iteration until it returns.
type Reporter interface {
	Report(p Progress)
}

// Step is one entry of the loss history.
type Step struct {
	Iteration    int
	Loss         float64
	LearningRate float64 // rate used for this iteration's update
}

// Result is the outcome of a finished run.
type Result struct {
	// Image is the final candidate in display space RGB.
	Image *tensor.RawTensor
	// Candidate is the final candidate in normalized space.
	Candidate *tensor.RawTensor
	// Iterations is the number of updates applied.
	Iterations int
	// LearningRate is the rate when the run stopped.
	LearningRate float64
	// Loss is the batch-mean loss of the last iteration.
	Loss float64
	// Converged is true when the learning rate fell below the floor.
	Converged bool
	History   []Step
}

// Option configures a Driver.
type Option func(*Driver)

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(d *Driver) {
		d.reporter = r
	}
}

// WithOptimizer replaces the default Adam optimizer.
func WithOptimizer(o optim.Optimizer) Option {
	return func(d *Driver) {
		d.optimizer = o
	}
}

// Driver runs the optimization loop on one candidate image.
type Driver struct {
	cfg       Config
	ex        Extractor
	backend   autodiff.BackwardCapable
	reporter  Reporter
	optimizer optim.Optimizer

	state atomic.Int32
	mu    sync.Mutex // serializes Run
}

// NewDriver creates a driver. ex must run on backend so that the candidate's
// activations are recorded on its tape.
func NewDriver(cfg Config, ex Extractor, backend autodiff.BackwardCapable, opts ...Option) *Driver {
	d := &Driver{
		cfg:     cfg,
		ex:      ex,
		backend: backend,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.optimizer == nil {
		d.optimizer = optim.NewAdam(optim.AdamConfig{})
	}
	return d
}

// State returns the current lifecycle state. It is safe to call while Run
// is in progress.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Run optimizes a candidate initialised from content.
//
// content and texture are normalized batches of identical shape
// [B, H, W, 3]; texture should already be desaturated. Run returns
// ErrInvalidConfig before iterating when inputs or configuration are
// unusable, ErrNonFinite when the loss diverges, and ctx.Err() when ctx
// is cancelled.
func (d *Driver) Run(ctx context.Context, content, texture *tensor.RawTensor) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Store(int32(Initializing))
	defer d.state.Store(int32(Terminated))

	composer, candidate, err := d.initialize(content, texture)
	if err != nil {
		return nil, err
	}

	d.state.Store(int32(Iterating))
	return d.iterate(ctx, composer, candidate)
}

// initialize validates inputs and computes the constant references.
func (d *Driver) initialize(content, texture *tensor.RawTensor) (*Composer, *tensor.RawTensor, error) {
	if err := d.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	s := content.Shape()
	if len(s) != 4 || s[3] != 3 || s[0] == 0 {
		return nil, nil, fmt.Errorf("%w: content must be [B, H, W, 3], got %v", ErrInvalidConfig, s)
	}
	if !s.Equal(texture.Shape()) {
		return nil, nil, fmt.Errorf("%w: content %v and texture %v differ in shape",
			ErrInvalidConfig, s, texture.Shape())
	}

	tape := d.backend.Tape()
	var refs *References
	err := tape.Paused(func() error {
		var err error
		refs, err = ComputeReferences(d.backend, d.ex, d.cfg.Layers, content, texture)
		return err
	})
	if err != nil {
		return nil, nil, referenceError(err)
	}

	d.optimizer.Reset()
	composer := NewComposer(d.backend, d.ex, d.cfg.Layers, d.cfg.Weights, refs)
	return composer, content.Clone(), nil
}

// referenceError classifies a reference failure. Layers the extractor does
// not know and inputs too small for the selected layers are configuration
// errors; anything else the extractor reports is passed through.
func referenceError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return fmt.Errorf("references: %w", err)
	case errors.Is(err, vgg.ErrUnknownLayer), errors.Is(err, vgg.ErrInputShape):
		return fmt.Errorf("%w: references: %w", ErrInvalidConfig, err)
	default:
		return fmt.Errorf("references: %w", err)
	}
}

// maxHistoryHint caps the history preallocation; most runs stop on the
// learning-rate floor long before a large budget.
const maxHistoryHint = 4096

// iterate is the Iterating state.
func (d *Driver) iterate(ctx context.Context, composer *Composer, candidate *tensor.RawTensor) (*Result, error) {
	sched := d.cfg.Schedule
	lr := sched.LearningRate
	window := newLossWindow(sched.Window, sched.Sentinel)
	res := &Result{
		Candidate: candidate,
		History:   make([]Step, 0, min(d.cfg.Iterations, maxHistoryHint)),
	}

	for i := 0; i < d.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loss, grad, err := d.gradient(composer, candidate)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		if !isFinite(loss.Value) || !loss.Total.IsFinite() || !grad.IsFinite() {
			return nil, fmt.Errorf("%w at iteration %d", ErrNonFinite, i)
		}

		if err := d.optimizer.Step(candidate, grad, float32(lr)); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		imaging.Clip(candidate)

		res.History = append(res.History, Step{Iteration: i, Loss: loss.Value, LearningRate: lr})
		res.Iterations = i + 1
		res.Loss = loss.Value

		window.push(loss.Value)
		if i > sched.WarmUp && window.meanRelativeChange() < sched.Plateau {
			lr *= sched.Decay
		}
		if lr < sched.Floor {
			res.Converged = true
			break
		}

		if d.reporter != nil && sched.ReportInterval > 0 && i%sched.ReportInterval == 0 {
			d.reporter.Report(Progress{
				Iteration:    i,
				LearningRate: lr,
				Loss:         loss,
				Candidate:    candidate,
			})
		}
	}

	res.LearningRate = lr
	image, err := imaging.Deprocess(candidate)
	if err != nil {
		return nil, err
	}
	res.Image = image
	return res, nil
}

// gradient records one loss evaluation and returns ∂Σ_b loss_b/∂candidate.
func (d *Driver) gradient(composer *Composer, candidate *tensor.RawTensor) (*Loss, *tensor.RawTensor, error) {
	tape := d.backend.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	loss, err := composer.Compute(candidate)
	if err != nil {
		return nil, nil, err
	}
	grad, err := autodiff.Gradient(loss.Total, candidate, d.backend)
	if err != nil {
		return nil, nil, err
	}
	return loss, grad, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// lossWindow holds the most recent losses, oldest first. A run whose loss is
// exactly zero reads as a plateau: 0/0 counts as no change, so the rate
// decays until the floor ends the run instead of never decaying.
type lossWindow struct {
	values []float64
}

func newLossWindow(n int, sentinel float64) *lossWindow {
	w := &lossWindow{values: make([]float64, n)}
	for i := range w.values {
		w.values[i] = sentinel
	}
	return w
}

// push drops the oldest loss and appends v.
func (w *lossWindow) push(v float64) {
	copy(w.values, w.values[1:])
	w.values[len(w.values)-1] = v
}

// meanRelativeChange is the mean of |next-prev|/|prev| over consecutive
// pairs. A pair with prev == 0 counts 0 when next is also 0, +Inf otherwise.
func (w *lossWindow) meanRelativeChange() float64 {
	var sum float64
	for i := 1; i < len(w.values); i++ {
		sum += relativeChange(w.values[i-1], w.values[i])
	}
	return sum / float64(len(w.values)-1)
}

func relativeChange(prev, next float64) float64 {
	if prev == 0 {
		if next == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(next-prev) / math.Abs(prev)
}
