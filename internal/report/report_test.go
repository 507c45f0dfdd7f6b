package report

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/tensor"
	"github.com/born-ml/texturize/internal/texture"
)

func progress(t *testing.T, iteration int) texture.Progress {
	t.Helper()
	display, err := tensor.Full(tensor.Shape{2, 3, 4, 3}, 100)
	require.NoError(t, err)
	candidate, err := imaging.Preprocess(display)
	require.NoError(t, err)
	return texture.Progress{
		Iteration:    iteration,
		LearningRate: 7.5,
		Loss:         &texture.Loss{Value: 12.5, Direct: 2.5, Texture: 10},
		Candidate:    candidate,
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	log := WithRunID(NewLogger(&buf, false), "run-1")
	NewLogReporter(log).Report(progress(t, 90))

	out := buf.String()
	assert.Contains(t, out, "msg=progress")
	assert.Contains(t, out, "iteration=90")
	assert.Contains(t, out, "loss=12.5")
	assert.Contains(t, out, "lr=7.5")
	assert.Contains(t, out, "run=run-1")
	assert.NotContains(t, out, "loss terms")
}

func TestLogReporterVerbose(t *testing.T) {
	var buf bytes.Buffer
	NewLogReporter(NewLogger(&buf, true)).Report(progress(t, 0))
	assert.Contains(t, buf.String(), "texture=10")
}

func TestPreview(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "previews")
	p, err := NewPreview(dir, imaging.Grid{Cols: 2, Rows: 1}, Discard())
	require.NoError(t, err)

	p.Report(progress(t, 0))
	p.Report(progress(t, 90))
	require.Equal(t, []string{
		filepath.Join(dir, "iter-00000.png"),
		filepath.Join(dir, "iter-00090.png"),
	}, p.Written())

	img, err := imaging.Load(p.Written()[1])
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(100), r>>8)
}

func TestPreviewFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	// A grid that does not match the batch makes recomposition fail.
	p, err := NewPreview(t.TempDir(), imaging.Grid{Cols: 3, Rows: 1}, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	p.Report(progress(t, 5))
	assert.Empty(t, p.Written())
	assert.True(t, strings.Contains(buf.String(), "preview not written"))
}

type countingReporter struct{ n int }

func (c *countingReporter) Report(texture.Progress) { c.n++ }

func TestMulti(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	Multi{a, b}.Report(progress(t, 1))
	Multi{a}.Report(progress(t, 2))
	assert.Equal(t, 2, a.n)
	assert.Equal(t, 1, b.n)
}
