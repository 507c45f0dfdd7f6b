package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/texturize/internal/config"
	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/report"
	"github.com/born-ml/texturize/internal/vgg"
	"github.com/born-ml/texturize/texture"
)

// runFlags holds command line overrides for a run file.
type runFlags struct {
	configPath string
	verbose    bool
	quiet      bool

	content, tex, output string
	weights, preview     string
	cols, rows           int
	contentLayers        []string
	textureLayers        []string
	direct, contentW     float32
	nogram, textureW     float32
	iterations           int
	learningRate         float64
	reportInterval       int
	maxDuration          time.Duration
	seed                 int64
	width                int
}

func newRunCmd() *cobra.Command {
	var fl runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transfer a texture onto a content image",
		Long: `Run loads an optional YAML or TOML run file, applies flag overrides
and writes the result image.

Without --weights a randomly initialised VGG19 of the given --width is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := config.Default()
			if fl.configPath != "" {
				var err error
				if f, err = config.Load(fl.configPath); err != nil {
					return err
				}
			}
			fl.apply(cmd.Flags(), f)
			run, err := f.ToRun()
			if err != nil {
				return err
			}

			log := report.NewLogger(cmd.ErrOrStderr(), fl.verbose)
			if fl.quiet {
				log = report.Discard()
			}
			return transfer(cmd.Context(), run, report.WithRunID(log, report.NewRunID()))
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&fl.configPath, "config", "c", "", "run file (.yaml, .yml or .toml)")
	fs.BoolVarP(&fl.verbose, "verbose", "v", false, "log every loss term")
	fs.BoolVarP(&fl.quiet, "quiet", "q", false, "log nothing")
	fs.StringVar(&fl.content, "content", "", "content image")
	fs.StringVar(&fl.tex, "texture", "", "texture image")
	fs.StringVarP(&fl.output, "output", "o", "", "output image")
	fs.StringVar(&fl.weights, "weights", "", "VGG19 SafeTensors weights")
	fs.StringVar(&fl.preview, "preview", "", "directory for intermediate images")
	fs.IntVar(&fl.cols, "cols", 1, "tile columns")
	fs.IntVar(&fl.rows, "rows", 1, "tile rows")
	fs.StringSliceVar(&fl.contentLayers, "content-layers", nil, "content layers")
	fs.StringSliceVar(&fl.textureLayers, "texture-layers", nil, "texture layers")
	fs.Float32Var(&fl.direct, "direct-weight", 0, "weight of the pixel term")
	fs.Float32Var(&fl.contentW, "content-weight", 0, "weight of the content term")
	fs.Float32Var(&fl.nogram, "nogram-weight", 0, "weight of the raw activation texture term")
	fs.Float32Var(&fl.textureW, "texture-weight", 0, "weight of the gram texture term")
	fs.IntVarP(&fl.iterations, "iterations", "n", 0, "iteration budget")
	fs.Float64Var(&fl.learningRate, "lr", 0, "initial learning rate")
	fs.IntVar(&fl.reportInterval, "report-interval", 0, "iterations between progress reports")
	fs.DurationVar(&fl.maxDuration, "max-duration", 0, "abort the run after this long")
	fs.Int64Var(&fl.seed, "seed", 0, "seed of the random extractor")
	fs.IntVar(&fl.width, "width", 0, "first block width of the random extractor")
	return cmd
}

// apply copies every flag that was set on the command line into f.
func (fl *runFlags) apply(fs *pflag.FlagSet, f *config.File) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("content", func() { f.ContentPath = fl.content })
	set("texture", func() { f.TexturePath = fl.tex })
	set("output", func() { f.OutputPath = fl.output })
	set("weights", func() { f.WeightsPath = fl.weights })
	set("preview", func() { f.PreviewDir = fl.preview })
	set("cols", func() { f.Split.Cols = fl.cols })
	set("rows", func() { f.Split.Rows = fl.rows })
	set("content-layers", func() { f.Layers.Content = fl.contentLayers })
	set("texture-layers", func() { f.Layers.Texture = fl.textureLayers })
	set("direct-weight", func() { f.Weights.Direct = fl.direct })
	set("content-weight", func() { f.Weights.Content = fl.contentW })
	set("nogram-weight", func() { f.Weights.NoGram = fl.nogram })
	set("texture-weight", func() { f.Weights.Texture = fl.textureW })
	set("iterations", func() {
		f.Iterations = fl.iterations
		f.NumIterations, f.NumIter = 0, 0
	})
	set("lr", func() { f.LearningRate = fl.learningRate })
	set("report-interval", func() { f.ReportInterval = fl.reportInterval })
	set("max-duration", func() { f.MaxDuration = fl.maxDuration })
	set("seed", func() { f.Seed = fl.seed })
	set("width", func() { f.Width = fl.width })
}

// transfer executes run and writes its output image.
func transfer(ctx context.Context, run *config.Run, log *slog.Logger) error {
	if run.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, run.MaxDuration)
		defer cancel()
	}

	backend := texture.NewBackend()
	ex, err := extractor(run, backend)
	if err != nil {
		return err
	}
	layers := append(slices.Clone(run.Texture.Layers.Texture), run.Texture.Layers.Content...)
	if missing := lo.Uniq(lo.Reject(layers, func(name string, _ int) bool { return ex.HasLayer(name) })); len(missing) > 0 {
		return fmt.Errorf("%w: %w: %s has no %s", texture.ErrInvalidConfig, texture.ErrUnknownLayer,
			ex.Arch(), strings.Join(missing, ", "))
	}

	var content, tex image.Image
	var g errgroup.Group
	g.Go(func() (err error) {
		content, err = imaging.Load(run.ContentPath)
		return err
	})
	g.Go(func() (err error) {
		tex, err = imaging.Load(run.TexturePath)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("starting",
		"content", run.ContentPath,
		"texture", run.TexturePath,
		"grid", run.Grid.String(),
		"network", ex.Arch().String(),
		"iterations", run.Texture.Iterations)

	reporters := report.Multi{report.NewLogReporter(log)}
	if run.PreviewDir != "" {
		preview, err := report.NewPreview(run.PreviewDir, run.Grid, log)
		if err != nil {
			return err
		}
		reporters = append(reporters, preview)
	}

	start := time.Now()
	out, res, err := texture.Transfer(ctx, content, tex, run.Grid, run.Texture, ex, backend,
		texture.WithReporter(reporters))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("run exceeded max_duration %v: %w", run.MaxDuration, err)
	}
	if err != nil {
		return err
	}
	if err := imaging.Save(run.OutputPath, out); err != nil {
		return err
	}

	log.Info("done",
		"output", run.OutputPath,
		"iterations", res.Iterations,
		"loss", res.Loss,
		"converged", res.Converged,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func extractor(run *config.Run, backend *texture.Backend) (*vgg.Extractor, error) {
	if run.WeightsPath != "" {
		return vgg.Load(run.WeightsPath, backend)
	}
	return vgg.NewRandom(vgg.NarrowVGG19(run.Width), run.Seed, backend)
}
