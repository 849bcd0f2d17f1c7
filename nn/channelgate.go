package nn

import "math/rand"

// DefaultGateReduction is the squeeze ratio used when none is configured.
const DefaultGateReduction = 16

// ChannelGate is a squeeze-and-excite gate over a [rows, channels, length]
// tensor. Each channel is scaled by sigmoid(Expand(relu(Reduce(mean_l x)))).
// Both projections are bias-free. Gate values lie in [0, 1]: the sigmoid is
// rounded to float32, so logits beyond about ±17 saturate to exactly 0 or 1.
type ChannelGate struct {
	Channels  int
	Reduction int
	Reduce    *Linear // channels -> channels/reduction
	Expand    *Linear // channels/reduction -> channels

	accel Accelerator
}

// NewChannelGate fails with ErrConfiguration unless channels is a positive
// multiple of reduction.
func NewChannelGate(channels, reduction int, rng *rand.Rand) (*ChannelGate, error) {
	if channels <= 0 {
		return nil, configErrorf("gate channels must be positive, got %d", channels)
	}
	if reduction <= 0 {
		return nil, configErrorf("gate reduction must be positive, got %d", reduction)
	}
	if channels%reduction != 0 {
		return nil, configErrorf("gate channels %d not divisible by reduction %d", channels, reduction)
	}
	squeezed := channels / reduction
	reduce, err := NewLinear(channels, squeezed, false, rng)
	if err != nil {
		return nil, err
	}
	expand, err := NewLinear(squeezed, channels, false, rng)
	if err != nil {
		return nil, err
	}
	return &ChannelGate{
		Channels:  channels,
		Reduction: reduction,
		Reduce:    reduce,
		Expand:    expand,
	}, nil
}

// SetAccelerator replaces the backend used for the final scaling.
func (g *ChannelGate) SetAccelerator(a Accelerator) {
	g.accel = a
}

// Gate computes the per-(row, channel) gate values in [0, 1], shaped [rows, channels].
func (g *ChannelGate) Gate(x *Tensor) (*Tensor, error) {
	if err := checkTensor(x, "gate"); err != nil {
		return nil, err
	}
	if x.Rank() != 3 || x.Shape[1] != g.Channels {
		return nil, shapeErrorf("gate expects [rows, %d, length], got %v", g.Channels, x.Shape)
	}
	rows, length := x.Shape[0], x.Shape[2]

	// Squeeze: mean over length.
	pooled := NewTensor(rows, g.Channels)
	if length > 0 {
		inv := 1.0 / float64(length)
		for rc := range pooled.Data {
			var sum float64
			for _, v := range x.Data[rc*length : (rc+1)*length] {
				sum += float64(v)
			}
			pooled.Data[rc] = float32(sum * inv)
		}
	}

	hidden, err := g.Reduce.Forward(pooled)
	if err != nil {
		return nil, err
	}
	for i, v := range hidden.Data {
		hidden.Data[i] = relu(v)
	}
	gate, err := g.Expand.Forward(hidden)
	if err != nil {
		return nil, err
	}
	for i, v := range gate.Data {
		gate.Data[i] = sigmoid(v)
	}
	return gate, nil
}

// Forward returns x scaled per channel; the output has the shape of x.
func (g *ChannelGate) Forward(x *Tensor) (*Tensor, error) {
	gate, err := g.Gate(x)
	if err != nil {
		return nil, err
	}
	accel := g.accel
	if accel == nil {
		accel = CPUAccelerator{}
	}
	data, err := accel.ScaleChannels(x.Data, gate.Data, x.Shape[0], x.Shape[1], x.Shape[2])
	if err != nil {
		return nil, err
	}
	return NewTensorFromSlice(data, x.Shape...), nil
}

// ParameterCount returns the number of learned values.
func (g *ChannelGate) ParameterCount() int {
	return g.Reduce.ParameterCount() + g.Expand.ParameterCount()
}
