package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/texture"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const yamlRun = `
content_path: lea.jpg
texture_path: proco.jpg
split: {cols: 2, rows: 3}
layers:
  content: [block5_conv2]
  texture: [block1_conv1, block2_conv1]
weights: {direct: 8, content: 3, nogram: 0.3, texture: 2e-5}
num_iterations: 2000
max_duration: 90s
width: 4
`

const tomlRun = `
content_path = "lea.jpg"
texture_path = "proco.jpg"
num_iter = 2000
max_duration = "90s"
width = 4

[split]
cols = 2
rows = 3

[layers]
content = ["block5_conv2"]
texture = ["block1_conv1", "block2_conv1"]

[weights]
direct = 8.0
content = 3.0
nogram = 0.3
texture = 2e-5
`

func expectedRun() *Run {
	schedule := texture.DefaultSchedule()
	return &Run{
		ContentPath: "lea.jpg",
		TexturePath: "proco.jpg",
		OutputPath:  "output.png",
		MaxDuration: 90 * time.Second,
		Seed:        1,
		Width:       4,
		Grid:        imaging.Grid{Cols: 2, Rows: 3},
		Texture: texture.Config{
			Layers: texture.Layers{
				Content: []string{"block5_conv2"},
				Texture: []string{"block1_conv1", "block2_conv1"},
			},
			Weights:    texture.Weights{Direct: 8, Content: 3, NoGram: 0.3, Texture: 2e-5},
			Iterations: 2000,
			Schedule:   schedule,
		},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "run.yaml", yamlRun},
		{"yml", "run.yml", yamlRun},
		{"toml", "run.toml", tomlRun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			run, err := f.ToRun()
			require.NoError(t, err)
			if diff := cmp.Diff(expectedRun(), run); diff != "" {
				t.Errorf("run mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	f, err := Load(writeFile(t, "run.yaml", "content_path: a.png\ntexture_path: b.png\n"))
	require.NoError(t, err)

	want := Default()
	want.ContentPath, want.TexturePath = "a.png", "b.png"
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	f, err := Load(writeFile(t, "run.yaml", ""))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(Default(), f))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "run.json", "{}"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(writeFile(t, "run.yaml", "content_pth: a.png\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "run.toml", "content_pth = \"a.png\"\n"))
	assert.ErrorContains(t, err, "unknown keys")

	_, err = Load(writeFile(t, "run.yaml", "split: [1, 2\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestToRunValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*File)
	}{
		{"missing content", func(f *File) { f.ContentPath = "" }},
		{"missing texture", func(f *File) { f.TexturePath = "" }},
		{"bad split", func(f *File) { f.Split = imaging.Grid{Cols: 0, Rows: 2} }},
		{"zero width without weights", func(f *File) { f.Width = 0 }},
		{"negative duration", func(f *File) { f.MaxDuration = -time.Second }},
		{"conflicting aliases", func(f *File) { f.NumIter, f.NumIterations = 5, 6 }},
		{"negative weight", func(f *File) { f.Weights.Direct = -1 }},
		{"zero iterations", func(f *File) { f.Iterations = 0 }},
		{"empty layers", func(f *File) { f.Layers.Texture = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default()
			f.ContentPath, f.TexturePath = "a.png", "b.png"
			tt.modify(f)
			_, err := f.ToRun()
			assert.ErrorIs(t, err, texture.ErrInvalidConfig)
		})
	}
}

func TestToRunWithWeightsIgnoresWidth(t *testing.T) {
	f := Default()
	f.ContentPath, f.TexturePath, f.WeightsPath = "a.png", "b.png", "vgg19.safetensors"
	f.Width = 0
	f.NumIter = 12
	run, err := f.ToRun()
	require.NoError(t, err)
	assert.Equal(t, 12, run.Texture.Iterations)
	assert.Equal(t, "vgg19.safetensors", run.WeightsPath)
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, format := range []string{"yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			want := Default()
			want.ContentPath, want.TexturePath = "a.png", "b.png"

			var buf bytes.Buffer
			require.NoError(t, want.Encode(&buf, format))

			got, err := Load(writeFile(t, "run."+format, buf.String()))
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}

	assert.ErrorIs(t, Default().Encode(&bytes.Buffer{}, "ini"), ErrUnknownFormat)
}
