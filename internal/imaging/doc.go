// Package imaging converts between decoded images and the float32 batches
// the extractor consumes.
//
// Two value spaces are used:
//   - display space: RGB in [0, 255], the layout produced by Split
//   - normalized space: BGR with the per-channel ImageNet means subtracted,
//     the layout produced by Preprocess and expected by VGG weights
//
// Tiling splits an image into a row-major grid of equally sized tiles that
// form one batch; Recompose reverses it.
package imaging
