// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package texture transfers the texture of one image onto the content of
// another.
//
// Example:
//
//	backend := texture.NewBackend()
//	ex, err := texture.LoadVGG19("vgg19.safetensors", backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, res, err := texture.Transfer(ctx, content, tex,
//	    texture.Grid{Cols: 1, Rows: 1}, texture.DefaultConfig(), ex, backend)
package texture

import (
	"context"
	"image"

	"github.com/born-ml/texturize/internal/autodiff"
	"github.com/born-ml/texturize/internal/backend/cpu"
	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/texture"
	"github.com/born-ml/texturize/internal/vgg"
)

// Configuration.
type (
	// Config is the full driver configuration.
	Config = texture.Config
	// Layers selects content and texture layers.
	Layers = texture.Layers
	// Weights scales the four loss terms.
	Weights = texture.Weights
	// Schedule controls learning-rate decay and termination.
	Schedule = texture.Schedule
	// Grid splits images into tiles.
	Grid = imaging.Grid
)

// Running.
type (
	// Driver runs the optimization loop.
	Driver = texture.Driver
	// Option configures a Driver.
	Option = texture.Option
	// Extractor computes named activations of a frozen network.
	Extractor = texture.Extractor
	// VGG19 is the VGG19 feature extractor; it implements Extractor.
	VGG19 = vgg.Extractor
	// Reporter receives periodic progress.
	Reporter = texture.Reporter
	// Progress is one progress snapshot.
	Progress = texture.Progress
	// Result is the outcome of a run.
	Result = texture.Result
	// Backend is the differentiable CPU backend runs execute on.
	Backend = autodiff.AutodiffBackend[*cpu.CPUBackend]
)

// Errors.
var (
	ErrInvalidConfig = texture.ErrInvalidConfig
	ErrNonFinite     = texture.ErrNonFinite

	// Extractors wrap these to have a failure treated as ErrInvalidConfig.
	ErrUnknownLayer = vgg.ErrUnknownLayer
	ErrInputShape   = vgg.ErrInputShape
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return texture.DefaultConfig()
}

// DefaultLayers returns the default VGG19 layer selection.
func DefaultLayers() Layers {
	return texture.DefaultLayers()
}

// DefaultSchedule returns the default learning-rate schedule.
func DefaultSchedule() Schedule {
	return texture.DefaultSchedule()
}

// WithReporter sets the progress reporter of a Driver.
func WithReporter(r Reporter) Option {
	return texture.WithReporter(r)
}

// NewBackend returns a differentiable CPU backend.
func NewBackend() *Backend {
	return autodiff.New(cpu.New())
}

// LoadVGG19 loads pretrained VGG19 weights from a SafeTensors file.
func LoadVGG19(path string, backend *Backend) (*VGG19, error) {
	return vgg.Load(path, backend)
}

// RandomVGG19 returns a VGG19-layout extractor with random weights whose
// first block has width channels.
func RandomVGG19(width int, seed int64, backend *Backend) (*VGG19, error) {
	return vgg.NewRandom(vgg.NarrowVGG19(width), seed, backend)
}

// NewDriver creates a driver for cfg.
func NewDriver(cfg Config, ex Extractor, backend *Backend, opts ...Option) *Driver {
	return texture.NewDriver(cfg, ex, backend, opts...)
}

// Transfer runs a complete transfer: it tiles both images, optimizes every
// tile and recomposes the result.
func Transfer(ctx context.Context, content, tex image.Image, grid Grid, cfg Config,
	ex Extractor, backend *Backend, opts ...Option) (*image.RGBA, *Result, error) {
	contentBatch, textureBatch, err := texture.Prepare(content, tex, grid)
	if err != nil {
		return nil, nil, err
	}
	res, err := texture.NewDriver(cfg, ex, backend, opts...).Run(ctx, contentBatch, textureBatch)
	if err != nil {
		return nil, nil, err
	}
	img, err := imaging.Recompose(res.Image, grid)
	if err != nil {
		return nil, nil, err
	}
	return img, res, nil
}
