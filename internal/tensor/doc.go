// Package tensor defines the float32 tensor representation shared by the
// texture-transfer pipeline and the Backend interface implemented by the
// compute backends.
//
// Image batches and feature activations use NHWC layout:
//
//	[batch, height, width, channels]
//
// Gram matrices are [batch, channels, channels].
package tensor
