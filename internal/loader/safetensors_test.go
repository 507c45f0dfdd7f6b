package loader

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/texturize/internal/tensor"
)

// createTestSafeTensorsFile creates a minimal SafeTensors file for testing.
func createTestSafeTensorsFile(t *testing.T, path string) {
	t.Helper()

	tensors := map[string]SafeTensorInfo{
		"weight": {
			DType:       SafeTensorsF32,
			Shape:       []int{2, 3},
			DataOffsets: [2]int64{0, 24}, // 2*3*4 = 24 bytes
		},
		"bias": {
			DType:       SafeTensorsF32,
			Shape:       []int{3},
			DataOffsets: [2]int64{24, 36}, // 3*4 = 12 bytes
		},
		"half": {
			DType:       SafeTensorsF16,
			Shape:       []int{4},
			DataOffsets: [2]int64{36, 44},
		},
		"brain": {
			DType:       SafeTensorsBF16,
			Shape:       []int{2},
			DataOffsets: [2]int64{44, 48},
		},
		"ids": {
			DType:       SafeTensorsI64,
			Shape:       []int{1},
			DataOffsets: [2]int64{48, 56},
		},
	}

	headerMap := make(map[string]any)
	headerMap["__metadata__"] = map[string]string{"format": "keras"}
	for name, info := range tensors {
		headerMap[name] = info
	}
	headerJSON, err := json.Marshal(headerMap)
	require.NoError(t, err)

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))))
	_, err = file.Write(headerJSON)
	require.NoError(t, err)

	// weight: [2, 3] = [[1, 2, 3], [4, 5, 6]]
	require.NoError(t, binary.Write(file, binary.LittleEndian, []float32{1, 2, 3, 4, 5, 6}))
	// bias: [3] = [0.1, 0.2, 0.3]
	require.NoError(t, binary.Write(file, binary.LittleEndian, []float32{0.1, 0.2, 0.3}))
	// half: 1.0, -2.0, 0.5, smallest subnormal
	require.NoError(t, binary.Write(file, binary.LittleEndian, []uint16{0x3c00, 0xc000, 0x3800, 0x0001}))
	// brain: 1.0, -3.0
	require.NoError(t, binary.Write(file, binary.LittleEndian, []uint16{0x3f80, 0xc040}))
	require.NoError(t, binary.Write(file, binary.LittleEndian, int64(7)))
}

func openTestReader(t *testing.T) *SafeTensorsReader {
	t.Helper()
	testFile := filepath.Join(t.TempDir(), "test.safetensors")
	createTestSafeTensorsFile(t, testFile)

	reader, err := NewSafeTensorsReader(testFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })
	return reader
}

func TestNewSafeTensorsReader(t *testing.T) {
	reader := openTestReader(t)

	assert.Equal(t, "keras", reader.Metadata()["format"])
	assert.Equal(t, []string{"bias", "brain", "half", "ids", "weight"}, reader.TensorNames())
	assert.True(t, reader.Has("weight"))
	assert.False(t, reader.Has("__metadata__"))
}

func TestNewSafeTensorsReader_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewSafeTensorsReader(filepath.Join(dir, "missing.safetensors"))
	assert.Error(t, err)

	truncated := filepath.Join(dir, "truncated.safetensors")
	require.NoError(t, os.WriteFile(truncated, []byte{1, 2, 3}, 0o600))
	_, err = NewSafeTensorsReader(truncated)
	assert.Error(t, err)

	huge := filepath.Join(dir, "huge.safetensors")
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, maxHeaderSize+1)
	require.NoError(t, os.WriteFile(huge, buf, 0o600))
	_, err = NewSafeTensorsReader(huge)
	assert.ErrorContains(t, err, "too large")
}

func TestSafeTensorsReader_TensorInfo(t *testing.T) {
	reader := openTestReader(t)

	info, err := reader.TensorInfo("weight")
	require.NoError(t, err)
	assert.Equal(t, SafeTensorsF32, info.DType)
	assert.Equal(t, []int{2, 3}, info.Shape)

	_, err = reader.TensorInfo("nonexistent")
	assert.ErrorIs(t, err, ErrTensorNotFound)
}

func TestSafeTensorsReader_ReadTensorData(t *testing.T) {
	reader := openTestReader(t)

	data, err := reader.ReadTensorData("weight")
	require.NoError(t, err)
	assert.Len(t, data, 2*3*4)
}

func TestSafeTensorsReader_LoadTensor(t *testing.T) {
	reader := openTestReader(t)

	tests := []struct {
		name  string
		shape tensor.Shape
		want  []float32
	}{
		{"weight", tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}},
		{"bias", tensor.Shape{3}, []float32{0.1, 0.2, 0.3}},
		{"half", tensor.Shape{4}, []float32{1, -2, 0.5, float32(math.Ldexp(1, -24))}},
		{"brain", tensor.Shape{2}, []float32{1, -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := reader.LoadTensor(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, raw.Shape())
			assert.InDeltaSlice(t, tt.want, raw.Data(), 1e-9)
		})
	}
}

func TestSafeTensorsReader_LoadTensorUnsupported(t *testing.T) {
	reader := openTestReader(t)

	_, err := reader.LoadTensor("ids")
	assert.ErrorIs(t, err, ErrUnsupportedDType)
}

// writeRawSafeTensors writes header and payload verbatim, so entries may
// disagree with the data that follows.
func writeRawSafeTensors(t *testing.T, header map[string]any, payload []byte) string {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "raw.safetensors")
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	buf = append(buf, headerJSON...)
	buf = append(buf, payload...)
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestSafeTensorsReader_OversizedEntries(t *testing.T) {
	path := writeRawSafeTensors(t, map[string]any{
		"far":   SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2}, DataOffsets: [2]int64{0, 1 << 40}},
		"wide":  SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{1 << 30, 1 << 30}, DataOffsets: [2]int64{0, 8}},
		"short": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{4}, DataOffsets: [2]int64{0, 16}},
		"ok":    SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2}, DataOffsets: [2]int64{0, 8}},
	}, make([]byte, 8))
	reader, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer reader.Close()

	for _, name := range []string{"far", "wide", "short"} {
		_, err := reader.LoadTensor(name)
		assert.Error(t, err, name)
	}
	_, err = reader.ReadTensorData("far")
	assert.ErrorContains(t, err, "invalid data offsets")
	_, err = reader.ReadTensorData("short")
	assert.ErrorContains(t, err, "invalid data offsets")

	raw, err := reader.LoadTensor("ok")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, raw.Data())
}

func TestHalfToFloat32Specials(t *testing.T) {
	assert.True(t, math.IsInf(float64(halfToFloat32(0x7c00)), 1))
	assert.True(t, math.IsInf(float64(halfToFloat32(0xfc00)), -1))
	assert.True(t, math.IsNaN(float64(halfToFloat32(0x7e00))))
	assert.Equal(t, float32(65504), halfToFloat32(0x7bff))
	assert.True(t, math.Signbit(float64(halfToFloat32(0x8000))))
}

func TestWriteSafeTensors_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.safetensors")
	kernel, err := tensor.FromSlice([]float32{1, -1, 2, -2, 3, -3}, tensor.Shape{1, 1, 2, 3})
	require.NoError(t, err)
	bias, err := tensor.FromSlice([]float32{0.5, 0.25, 0}, tensor.Shape{3})
	require.NoError(t, err)

	err = WriteSafeTensors(path, map[string]*tensor.RawTensor{
		"block1_conv1.kernel": kernel,
		"block1_conv1.bias":   bias,
	}, map[string]string{"arch": "test"})
	require.NoError(t, err)

	reader, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "test", reader.Metadata()["arch"])
	got, err := reader.LoadTensor("block1_conv1.kernel")
	require.NoError(t, err)
	assert.Equal(t, kernel.Shape(), got.Shape())
	assert.Equal(t, kernel.Data(), got.Data())

	got, err = reader.LoadTensor("block1_conv1.bias")
	require.NoError(t, err)
	assert.Equal(t, bias.Data(), got.Data())
}

func TestWriteSafeTensors_ReservedName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.safetensors")
	err := WriteSafeTensors(path, map[string]*tensor.RawTensor{
		"__metadata__": tensor.MustRaw(tensor.Shape{1}),
	}, nil)
	assert.Error(t, err)
}
