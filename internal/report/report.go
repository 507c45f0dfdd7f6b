// Package report implements progress reporters for the texture driver.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/texture"
)

// NewRunID returns a fresh identifier for one run.
func NewRunID() string {
	return uuid.NewString()
}

// NewLogger returns a text logger on w. verbose enables debug records.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Logger writes one record per report.
type Logger struct {
	log *slog.Logger
}

// NewLogReporter returns a reporter that logs to log.
func NewLogReporter(log *slog.Logger) *Logger {
	return &Logger{log: log}
}

// Report implements texture.Reporter.
func (l *Logger) Report(p texture.Progress) {
	l.log.Info("progress",
		slog.Int("iteration", p.Iteration),
		slog.Float64("loss", p.Loss.Value),
		slog.Float64("lr", p.LearningRate),
	)
	l.log.Debug("loss terms",
		slog.Int("iteration", p.Iteration),
		slog.Float64("direct", p.Loss.Direct),
		slog.Float64("content", p.Loss.Content),
		slog.Float64("nogram", p.Loss.NoGram),
		slog.Float64("texture", p.Loss.Texture),
	)
}

// Preview saves the recomposed candidate as an image on every report.
// Failures are logged and never interrupt the run.
type Preview struct {
	dir  string
	grid imaging.Grid
	log  *slog.Logger

	written []string
}

// NewPreview creates dir and returns a preview writer for candidates tiled
// with grid.
func NewPreview(dir string, grid imaging.Grid, log *slog.Logger) (*Preview, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return &Preview{dir: dir, grid: grid, log: log}, nil
}

// Report implements texture.Reporter.
func (p *Preview) Report(pr texture.Progress) {
	path := filepath.Join(p.dir, fmt.Sprintf("iter-%05d.png", pr.Iteration))
	if err := p.write(path, pr); err != nil {
		p.log.Warn("preview not written", slog.String("path", path), slog.Any("error", err))
		return
	}
	p.written = append(p.written, path)
	p.log.Debug("preview written", slog.String("path", path))
}

func (p *Preview) write(path string, pr texture.Progress) error {
	display, err := imaging.Deprocess(pr.Candidate)
	if err != nil {
		return err
	}
	img, err := imaging.Recompose(display, p.grid)
	if err != nil {
		return err
	}
	return imaging.Save(path, img)
}

// Written lists the preview files written so far.
func (p *Preview) Written() []string {
	return p.written
}

// Multi fans a report out to several reporters in order.
type Multi []texture.Reporter

// Report implements texture.Reporter.
func (m Multi) Report(p texture.Progress) {
	for _, r := range m {
		r.Report(p)
	}
}

// WithRunID returns log with the run identifier attached to every record.
func WithRunID(log *slog.Logger, runID string) *slog.Logger {
	return log.With(slog.String("run", runID))
}

// discard is a logger that drops everything.
var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return discard
}
