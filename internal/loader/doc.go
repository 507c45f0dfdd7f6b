// Package loader reads pretrained network weights stored in the SafeTensors
// format.
//
// Tensors are decoded lazily by name into float32 RawTensors. F32, F16 and
// BF16 payloads are supported; half-precision values are widened on load.
//
// Example:
//
//	reader, err := loader.NewSafeTensorsReader("vgg19.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//
//	kernel, err := reader.LoadTensor("block1_conv1.kernel")
//
// WriteSafeTensors produces files the reader accepts, which is how smaller
// extractors are exported for offline runs and tests.
package loader
