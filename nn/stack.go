package nn

import "fmt"

// Orientation names the spatial axis a block recurs over.
type Orientation int

const (
	OrientationTime Orientation = iota // recur over T with input [B, K, T, N]
	OrientationBand                    // recur over K with input [B, T, K, N]
)

func (o Orientation) String() string {
	switch o {
	case OrientationTime:
		return "time"
	case OrientationBand:
		return "band"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// BlockDescriptor is one step of the stack's plan: run Blocks[BlockIndex],
// then Gates[GateIndex].
type BlockDescriptor struct {
	Layer       int         `json:"layer"`
	Orientation Orientation `json:"orientation"`
	BlockIndex  int         `json:"block_index"`
	GateIndex   int         `json:"gate_index"`
}

// Stage identifies where an Observer is called from.
type Stage string

const (
	StageBlock Stage = "block"
	StageGate  Stage = "gate"
)

// Observer is notified after every block and gate with the current shape.
type Observer interface {
	OnStage(desc BlockDescriptor, stage Stage, shape []int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(desc BlockDescriptor, stage Stage, shape []int)

func (f ObserverFunc) OnStage(desc BlockDescriptor, stage Stage, shape []int) {
	f(desc, stage, shape)
}

// DualAxisStack alternates time-axis and band-axis recurrent blocks, each
// followed by its own ChannelGate, for Config.NumLayers layers.
//
// Input and output are [B, K, T, N]. Gates use the feature axis as the
// channel axis: the current [B, A1, A2, N] tensor is gated as
// [B*A1, N, A2], i.e. pooled over the axis the block just recurred on
// (bands after a time block, time after a band block).
type DualAxisStack struct {
	Config StackConfig
	Blocks []*AxisRecurrentBlock // 2*NumLayers, time and band alternating
	Gates  []*ChannelGate        // one per block

	plan     []BlockDescriptor
	observer Observer
}

// NewDualAxisStack validates cfg and builds every block and gate with
// parameters drawn from a generator seeded with cfg.Seed.
func NewDualAxisStack(cfg StackConfig) (*DualAxisStack, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := newRand(cfg.Seed)

	s := &DualAxisStack{
		Config: cfg,
		Blocks: make([]*AxisRecurrentBlock, 0, 2*cfg.NumLayers),
		Gates:  make([]*ChannelGate, 0, 2*cfg.NumLayers),
		plan:   make([]BlockDescriptor, 0, 2*cfg.NumLayers),
	}
	for layer := 0; layer < cfg.NumLayers; layer++ {
		for _, o := range []Orientation{OrientationTime, OrientationBand} {
			block, err := NewAxisRecurrentBlock(cfg.blockConfig(), rng)
			if err != nil {
				return nil, err
			}
			s.plan = append(s.plan, BlockDescriptor{
				Layer:       layer,
				Orientation: o,
				BlockIndex:  len(s.Blocks),
				GateIndex:   len(s.Gates),
			})
			s.Blocks = append(s.Blocks, block)
		}
	}
	for range s.Blocks {
		gate, err := NewChannelGate(cfg.FeatureWidth, cfg.GateReduction, rng)
		if err != nil {
			return nil, err
		}
		s.Gates = append(s.Gates, gate)
	}
	return s, nil
}

// Plan returns a copy of the ordered block descriptors.
func (s *DualAxisStack) Plan() []BlockDescriptor {
	return append([]BlockDescriptor(nil), s.plan...)
}

// SetObserver installs o; nil removes it.
func (s *DualAxisStack) SetObserver(o Observer) {
	s.observer = o
}

// SetAccelerator routes every block's residual sum and every gate's scaling
// through a; nil restores the CPU path.
func (s *DualAxisStack) SetAccelerator(a Accelerator) {
	for _, b := range s.Blocks {
		b.SetAccelerator(a)
	}
	for _, g := range s.Gates {
		g.SetAccelerator(a)
	}
}

// CheckInput reports ErrShapeMismatch unless x is [B, K, T, FeatureWidth].
func (s *DualAxisStack) CheckInput(x *Tensor) error {
	if err := checkTensor(x, "stack"); err != nil {
		return err
	}
	if x.Rank() != 4 {
		return shapeErrorf("stack expects a rank-4 [B, K, T, N] tensor, got %v", x.Shape)
	}
	if x.Shape[3] != s.Config.FeatureWidth {
		return shapeErrorf("stack expects %d features, got %v", s.Config.FeatureWidth, x.Shape)
	}
	return nil
}

// Forward maps [B, K, T, N] to a new tensor of the same shape. It only reads
// the stack, so independent inputs may be processed concurrently.
func (s *DualAxisStack) Forward(x *Tensor) (*Tensor, error) {
	if err := s.CheckInput(x); err != nil {
		return nil, err
	}
	cur := x
	for _, desc := range s.plan {
		var err error
		cur, err = s.Blocks[desc.BlockIndex].Forward(cur)
		if err != nil {
			return nil, fmt.Errorf("layer %d %s block: %w", desc.Layer, desc.Orientation, err)
		}
		s.notify(desc, StageBlock, cur.Shape)

		cur, err = gateFeatures(s.Gates[desc.GateIndex], cur)
		if err != nil {
			return nil, fmt.Errorf("layer %d %s gate: %w", desc.Layer, desc.Orientation, err)
		}
		s.notify(desc, StageGate, cur.Shape)
	}
	return cur, nil
}

func (s *DualAxisStack) notify(desc BlockDescriptor, stage Stage, shape []int) {
	if s.observer != nil {
		s.observer.OnStage(desc, stage, append([]int(nil), shape...))
	}
}

// gateFeatures applies g to [B, A1, A2, N] as [B*A1, N, A2] and restores
// the [B, A1, A2, N] layout.
func gateFeatures(g *ChannelGate, x *Tensor) (*Tensor, error) {
	B, A1, A2, N := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	channelsFirst := x.Reshape(B*A1, A2, N).Permute(0, 2, 1)
	gated, err := g.Forward(channelsFirst)
	if err != nil {
		return nil, err
	}
	return gated.Permute(0, 2, 1).Reshape(B, A1, A2, N), nil
}

// ParameterCount returns the number of learned values in the stack.
func (s *DualAxisStack) ParameterCount() int {
	n := 0
	for _, b := range s.Blocks {
		n += b.ParameterCount()
	}
	for _, g := range s.Gates {
		n += g.ParameterCount()
	}
	return n
}
