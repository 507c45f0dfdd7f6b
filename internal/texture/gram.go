package texture

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// Gram computes the gram matrix of each batch entry of an activation
// [B, H, W, C]: the C×C matrix of channel inner products over all spatial
// positions, divided by H·W. The result is [B, C, C] and symmetric.
func Gram(b tensor.Backend, act *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := act.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("gram: expected [B, H, W, C], got %v", shape)
	}
	n, h, w, c := shape.NHWC()
	if h*w == 0 {
		return nil, fmt.Errorf("gram: empty spatial extent in %v", shape)
	}

	x := b.Reshape(act, tensor.Shape{n, h * w, c})
	g := b.BatchMatMul(b.Transpose(x), x)
	return b.MulScalar(g, 1/float32(h*w)), nil
}
