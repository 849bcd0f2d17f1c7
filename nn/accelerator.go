package nn

// Accelerator runs the elementwise stages of the stack: the residual sum of
// a recurrent block and the per-channel scaling of a gate. The CPU version is
// used unless a stack is given another one (see the gpu package).
type Accelerator interface {
	// ResidualAdd returns x + skip elementwise.
	ResidualAdd(x, skip []float32) ([]float32, error)
	// ScaleChannels returns x[r, c, l] * gate[r, c] for x laid out [rows, channels, length].
	ScaleChannels(x, gate []float32, rows, channels, length int) ([]float32, error)
}

// CPUAccelerator is the default Accelerator.
type CPUAccelerator struct{}

func (CPUAccelerator) ResidualAdd(x, skip []float32) ([]float32, error) {
	if len(x) != len(skip) {
		return nil, shapeErrorf("residual operands differ in size: %d vs %d", len(x), len(skip))
	}
	out := make([]float32, len(x))
	for i := range x {
		out[i] = x[i] + skip[i]
	}
	return out, nil
}

func (CPUAccelerator) ScaleChannels(x, gate []float32, rows, channels, length int) ([]float32, error) {
	if len(x) != rows*channels*length || len(gate) != rows*channels {
		return nil, shapeErrorf("channel scaling of %d values by %d gates does not fit [%d, %d, %d]",
			len(x), len(gate), rows, channels, length)
	}
	out := make([]float32, len(x))
	for rc, g := range gate {
		off := rc * length
		for l := 0; l < length; l++ {
			out[off+l] = x[off+l] * g
		}
	}
	return out, nil
}
