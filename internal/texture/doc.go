// Package texture implements neural texture transfer.
//
// A candidate image starts as a copy of the content image and is refined by
// gradient descent on its pixels. The loss compares extractor activations
// of the candidate with cached references:
//
//   - content: activations of the candidate against those of the content
//   - texture: gram matrices of the desaturated candidate against those of
//     the desaturated texture
//   - nogram: raw activations of the desaturated candidate against those of
//     the desaturated texture
//   - direct: pixels of the candidate against those of the content
//
// Every batch entry is one tile and is optimised independently: losses are
// kept per tile and never summed across tiles before differentiation.
package texture
