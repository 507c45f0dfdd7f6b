package texture

import (
	"fmt"
	"math"
)

// Weights scale the four loss terms. All weights must be finite and
// non-negative; a zero weight removes its term.
type Weights struct {
	Direct  float32 `yaml:"direct" toml:"direct"`
	Content float32 `yaml:"content" toml:"content"`
	NoGram  float32 `yaml:"nogram" toml:"nogram"`
	Texture float32 `yaml:"texture" toml:"texture"`
}

// Validate checks the weights.
func (w Weights) Validate() error {
	named := []struct {
		name string
		v    float32
	}{
		{"direct", w.Direct}, {"content", w.Content}, {"nogram", w.NoGram}, {"texture", w.Texture},
	}
	var positive bool
	for _, n := range named {
		f := float64(n.v)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return fmt.Errorf("%w: %s weight %v must be finite and non-negative", ErrInvalidConfig, n.name, n.v)
		}
		positive = positive || n.v > 0
	}
	if !positive {
		return fmt.Errorf("%w: every loss weight is zero", ErrInvalidConfig)
	}
	return nil
}

// usesExtractor reports whether any term needs extractor activations.
func (w Weights) usesExtractor() bool {
	return w.Content > 0 || w.NoGram > 0 || w.Texture > 0
}

// Layers selects the extractor layers that feed the loss.
type Layers struct {
	Content []string `yaml:"content" toml:"content"`
	Texture []string `yaml:"texture" toml:"texture"`
}

// DefaultLayers returns the VGG19 layer selection the transfer was tuned with.
func DefaultLayers() Layers {
	return Layers{
		Content: []string{"block1_conv1", "block5_conv2"},
		Texture: []string{"block1_conv1", "block2_conv1", "block3_conv1"},
	}
}

// Query returns the list sent to the extractor: texture layers first, then
// content layers.
func (l Layers) Query() []string {
	q := make([]string, 0, len(l.Texture)+len(l.Content))
	q = append(q, l.Texture...)
	return append(q, l.Content...)
}

// Validate checks that both lists are non-empty.
func (l Layers) Validate() error {
	if len(l.Content) == 0 || len(l.Texture) == 0 {
		return fmt.Errorf("%w: need at least one content and one texture layer (got %d and %d)",
			ErrInvalidConfig, len(l.Content), len(l.Texture))
	}
	return nil
}

// Schedule controls the learning rate and termination of the driver.
type Schedule struct {
	LearningRate   float64 // initial learning rate
	WarmUp         int     // iterations before decay may trigger
	Plateau        float64 // mean relative loss change below which lr decays
	Decay          float64 // lr multiplier on plateau
	Floor          float64 // lr below which the run has converged
	Window         int     // number of recent losses compared
	Sentinel       float64 // initial value of every window slot
	ReportInterval int     // report every ReportInterval iterations; 0 disables
}

// DefaultSchedule returns the schedule used by the reference runs.
func DefaultSchedule() Schedule {
	return Schedule{
		LearningRate:   10,
		WarmUp:         10,
		Plateau:        1e-4,
		Decay:          0.75,
		Floor:          5e-6,
		Window:         5,
		Sentinel:       1,
		ReportInterval: 90,
	}
}

// Validate checks the schedule.
func (s Schedule) Validate() error {
	switch {
	case !(s.LearningRate > 0) || math.IsInf(s.LearningRate, 0):
		return fmt.Errorf("%w: learning rate %v", ErrInvalidConfig, s.LearningRate)
	case !(s.Decay > 0 && s.Decay < 1):
		return fmt.Errorf("%w: decay %v must be in (0, 1)", ErrInvalidConfig, s.Decay)
	case !(s.Floor > 0):
		return fmt.Errorf("%w: floor %v must be positive", ErrInvalidConfig, s.Floor)
	case !(s.Plateau >= 0):
		return fmt.Errorf("%w: plateau %v must be non-negative", ErrInvalidConfig, s.Plateau)
	case s.Window < 2:
		return fmt.Errorf("%w: window %d must hold at least two losses", ErrInvalidConfig, s.Window)
	case s.WarmUp < 0 || s.ReportInterval < 0:
		return fmt.Errorf("%w: warm-up %d and report interval %d must be non-negative",
			ErrInvalidConfig, s.WarmUp, s.ReportInterval)
	}
	return nil
}

// Config is everything the driver needs besides the images and extractor.
type Config struct {
	Layers     Layers
	Weights    Weights
	Iterations int
	Schedule   Schedule
}

// DefaultConfig returns the default layers and schedule with 1000
// iterations and the weights (5, 1, 0, 5e-5).
func DefaultConfig() Config {
	return Config{
		Layers:     DefaultLayers(),
		Weights:    Weights{Direct: 5, Content: 1, NoGram: 0, Texture: 5e-5},
		Iterations: 1000,
		Schedule:   DefaultSchedule(),
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations %d must be positive", ErrInvalidConfig, c.Iterations)
	}
	if err := c.Layers.Validate(); err != nil {
		return err
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	return c.Schedule.Validate()
}
