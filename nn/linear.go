package nn

import "math/rand"

// Linear is a dense projection y = x @ Weightᵀ + Bias.
// Weight is stored [Out, In]; Bias is nil for bias-free projections.
type Linear struct {
	In     int
	Out    int
	Weight []float32
	Bias   []float32
}

// NewLinear allocates a projection with uniform ±1/sqrt(in) weights.
func NewLinear(in, out int, bias bool, rng *rand.Rand) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, configErrorf("linear dimensions must be positive, got in=%d out=%d", in, out)
	}
	l := &Linear{
		In:     in,
		Out:    out,
		Weight: make([]float32, out*in),
	}
	bound := fanInBound(in)
	uniformFill(l.Weight, bound, rng)
	if bias {
		l.Bias = make([]float32, out)
		uniformFill(l.Bias, bound, rng)
	}
	return l, nil
}

// Forward projects the last axis of x from In to Out features.
// Any leading axes are treated as rows.
func (l *Linear) Forward(x *Tensor) (*Tensor, error) {
	if x.Rank() == 0 || x.Shape[x.Rank()-1] != l.In {
		return nil, shapeErrorf("linear expects last axis %d, got shape %v", l.In, x.Shape)
	}
	rows := x.Size() / l.In
	outShape := append([]int(nil), x.Shape...)
	outShape[len(outShape)-1] = l.Out
	out := NewTensor(outShape...)

	matMulTransB(rows, l.Out, l.In, x.Data, l.Weight, 0, out.Data)
	if l.Bias != nil {
		addRowBias(out.Data, l.Bias)
	}
	return out, nil
}

// ParameterCount returns the number of learned values.
func (l *Linear) ParameterCount() int {
	return len(l.Weight) + len(l.Bias)
}
