// Package config loads run files for the texturize command.
//
// A run file is YAML (.yaml, .yml) or TOML (.toml). Keys that are absent
// keep their defaults:
//
//	content_path: lea.jpg
//	texture_path: proco.jpg
//	split: {cols: 2, rows: 2}
//	layers:
//	  content: [block1_conv1, block5_conv2]
//	  texture: [block1_conv1, block2_conv1, block3_conv1]
//	weights: {direct: 8, content: 3, nogram: 0.3, texture: 2e-5}
//	iterations: 1000
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/texture"
)

// ErrUnknownFormat is returned for run files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("unknown run file format")

// File is the on-disk form of a run.
type File struct {
	ContentPath string `yaml:"content_path" toml:"content_path"`
	TexturePath string `yaml:"texture_path" toml:"texture_path"`
	OutputPath  string `yaml:"output_path" toml:"output_path"`
	// WeightsPath is a SafeTensors VGG19 file. When empty a random
	// extractor of the given Width is used.
	WeightsPath string `yaml:"weights_path,omitempty" toml:"weights_path,omitempty"`
	PreviewDir  string `yaml:"preview_dir,omitempty" toml:"preview_dir,omitempty"`

	Split      imaging.Grid    `yaml:"split" toml:"split"`
	Layers     texture.Layers  `yaml:"layers" toml:"layers"`
	Weights    texture.Weights `yaml:"weights" toml:"weights"`
	Iterations int             `yaml:"iterations" toml:"iterations"`

	// Alternative spellings of Iterations.
	NumIterations int `yaml:"num_iterations,omitempty" toml:"num_iterations,omitempty"`
	NumIter       int `yaml:"num_iter,omitempty" toml:"num_iter,omitempty"`

	LearningRate   float64       `yaml:"learning_rate" toml:"learning_rate"`
	ReportInterval int           `yaml:"report_interval" toml:"report_interval"`
	MaxDuration    time.Duration `yaml:"max_duration,omitempty" toml:"max_duration,omitempty"`
	Seed           int64         `yaml:"seed" toml:"seed"`
	Width          int           `yaml:"width" toml:"width"`
}

// Default returns a run file with every default filled in.
func Default() *File {
	cfg := texture.DefaultConfig()
	return &File{
		OutputPath:     "output.png",
		Split:          imaging.Grid{Cols: 1, Rows: 1},
		Layers:         cfg.Layers,
		Weights:        cfg.Weights,
		Iterations:     cfg.Iterations,
		LearningRate:   cfg.Schedule.LearningRate,
		ReportInterval: cfg.Schedule.ReportInterval,
		Seed:           1,
		Width:          8,
	}
}

// Load reads a run file on top of Default. Unknown keys are errors.
func Load(path string) (*File, error) {
	//nolint:gosec // G304: File path comes from user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	f := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), f)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: %s: unknown keys %v", path, undecoded)
		}
	default:
		return nil, fmt.Errorf("config: %s: %w %q", path, ErrUnknownFormat, ext)
	}
	return f, nil
}

// Encode writes f to w as "yaml" or "toml".
func (f *File) Encode(w io.Writer, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(f)
	default:
		return fmt.Errorf("config: %w %q", ErrUnknownFormat, format)
	}
}

// iterations resolves Iterations and its alternative spellings. A
// spelling other than "iterations", when present, takes precedence.
func (f *File) iterations() (int, error) {
	switch {
	case f.NumIterations != 0 && f.NumIter != 0 && f.NumIterations != f.NumIter:
		return 0, fmt.Errorf("%w: num_iterations %d and num_iter %d disagree",
			texture.ErrInvalidConfig, f.NumIterations, f.NumIter)
	case f.NumIterations != 0:
		return f.NumIterations, nil
	case f.NumIter != 0:
		return f.NumIter, nil
	default:
		return f.Iterations, nil
	}
}

// Run is a validated run.
type Run struct {
	ContentPath string
	TexturePath string
	OutputPath  string
	WeightsPath string
	PreviewDir  string
	MaxDuration time.Duration
	Seed        int64
	Width       int
	Grid        imaging.Grid
	Texture     texture.Config
}

// ToRun validates f and resolves it into a Run.
func (f *File) ToRun() (*Run, error) {
	if f.ContentPath == "" || f.TexturePath == "" {
		return nil, fmt.Errorf("%w: content_path and texture_path are required", texture.ErrInvalidConfig)
	}
	if err := f.Split.Validate(); err != nil {
		return nil, fmt.Errorf("%w: split: %w", texture.ErrInvalidConfig, err)
	}
	if f.WeightsPath == "" && f.Width <= 0 {
		return nil, fmt.Errorf("%w: width %d must be positive without weights_path", texture.ErrInvalidConfig, f.Width)
	}
	if f.MaxDuration < 0 {
		return nil, fmt.Errorf("%w: negative max_duration %v", texture.ErrInvalidConfig, f.MaxDuration)
	}
	iterations, err := f.iterations()
	if err != nil {
		return nil, err
	}

	schedule := texture.DefaultSchedule()
	schedule.LearningRate = f.LearningRate
	schedule.ReportInterval = f.ReportInterval
	cfg := texture.Config{
		Layers:     f.Layers,
		Weights:    f.Weights,
		Iterations: iterations,
		Schedule:   schedule,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	output := f.OutputPath
	if output == "" {
		output = Default().OutputPath
	}
	return &Run{
		ContentPath: f.ContentPath,
		TexturePath: f.TexturePath,
		OutputPath:  output,
		WeightsPath: f.WeightsPath,
		PreviewDir:  f.PreviewDir,
		MaxDuration: f.MaxDuration,
		Seed:        f.Seed,
		Width:       f.Width,
		Grid:        f.Split,
		Texture:     cfg,
	}, nil
}
