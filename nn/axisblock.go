package nn

import "math/rand"

// BlockConfig describes one AxisRecurrentBlock.
type BlockConfig struct {
	FeatureWidth  int
	HiddenWidth   int
	Kind          RecurrenceKind
	Bidirectional bool
	Epsilon       float64
	Parallel      bool
}

// AxisRecurrentBlock recurs along axis 2 of a [B, A1, A2, N] tensor:
//
//	fold [B*A1, A2, N] -> GroupNorm(N, N) -> BiRecurrent -> Linear(D*H, N)
//	-> + input -> unfold -> swap axes 1, 2
//
// so the output is [B, A2, A1, N] and the next block recurs along A1.
type AxisRecurrentBlock struct {
	FeatureWidth int
	Norm         *GroupNorm
	RNN          *BiRecurrent
	Proj         *Linear

	accel Accelerator
}

// NewAxisRecurrentBlock validates cfg and draws initial parameters from rng.
func NewAxisRecurrentBlock(cfg BlockConfig, rng *rand.Rand) (*AxisRecurrentBlock, error) {
	if cfg.FeatureWidth <= 0 {
		return nil, configErrorf("feature width must be positive, got %d", cfg.FeatureWidth)
	}
	if cfg.HiddenWidth <= 0 {
		return nil, configErrorf("hidden width must be positive, got %d", cfg.HiddenWidth)
	}
	norm, err := NewGroupNorm(cfg.FeatureWidth, cfg.FeatureWidth, cfg.Epsilon)
	if err != nil {
		return nil, err
	}
	rnn, err := NewBiRecurrent(cfg.Kind, cfg.FeatureWidth, cfg.HiddenWidth, cfg.Bidirectional, rng)
	if err != nil {
		return nil, err
	}
	rnn.Parallel = cfg.Parallel
	proj, err := NewLinear(rnn.OutputSize(), cfg.FeatureWidth, true, rng)
	if err != nil {
		return nil, err
	}
	return &AxisRecurrentBlock{
		FeatureWidth: cfg.FeatureWidth,
		Norm:         norm,
		RNN:          rnn,
		Proj:         proj,
	}, nil
}

// SetAccelerator replaces the backend used for the residual sum.
func (b *AxisRecurrentBlock) SetAccelerator(a Accelerator) {
	b.accel = a
}

func (b *AxisRecurrentBlock) checkInput(x *Tensor) error {
	if err := checkTensor(x, "recurrent block"); err != nil {
		return err
	}
	if x.Rank() != 4 {
		return shapeErrorf("recurrent block expects a rank-4 tensor, got %v", x.Shape)
	}
	if x.Shape[3] != b.FeatureWidth {
		return shapeErrorf("recurrent block expects %d features, got %v", b.FeatureWidth, x.Shape)
	}
	return nil
}

// Refine runs fold, normalize, recur, project and residual add, returning a
// tensor with the input's shape and axis order.
func (b *AxisRecurrentBlock) Refine(x *Tensor) (*Tensor, error) {
	if err := b.checkInput(x); err != nil {
		return nil, err
	}
	B, A1, A2, N := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]

	seq := x.Reshape(B*A1, A2, N)
	normed, err := b.Norm.Forward(seq)
	if err != nil {
		return nil, err
	}
	hidden, err := b.RNN.Run(normed)
	if err != nil {
		return nil, err
	}
	proj, err := b.Proj.Forward(hidden)
	if err != nil {
		return nil, err
	}

	accel := b.accel
	if accel == nil {
		accel = CPUAccelerator{}
	}
	sum, err := accel.ResidualAdd(proj.Data, x.Data)
	if err != nil {
		return nil, err
	}
	return NewTensorFromSlice(sum, B, A1, A2, N), nil
}

// Forward is Refine followed by the axis swap: [B, A1, A2, N] -> [B, A2, A1, N].
func (b *AxisRecurrentBlock) Forward(x *Tensor) (*Tensor, error) {
	refined, err := b.Refine(x)
	if err != nil {
		return nil, err
	}
	return refined.SwapAxes12(), nil
}

// ParameterCount returns the number of learned values.
func (b *AxisRecurrentBlock) ParameterCount() int {
	n := b.Norm.ParameterCount() + b.Proj.ParameterCount()
	for _, c := range b.RNN.Cells() {
		if w, ok := c.(interface{ Weights() *RecurrentWeights }); ok {
			n += w.Weights().ParameterCount()
		}
	}
	return n
}
