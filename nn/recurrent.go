package nn

import (
	"math/rand"
	"strings"
)

// RecurrenceKind selects the cell used by a recurrent block.
type RecurrenceKind int

const (
	GatedLSTM RecurrenceKind = iota // long short-term memory, gates i,f,g,o
	GRU                             // gated recurrent unit, gates r,z,n
	PlainRNN                        // tanh recurrence
)

func (k RecurrenceKind) String() string {
	switch k {
	case GatedLSTM:
		return "lstm"
	case GRU:
		return "gru"
	case PlainRNN:
		return "rnn"
	default:
		return "unknown"
	}
}

// gates returns how many stacked gate blocks the cell's weights hold.
func (k RecurrenceKind) gates() int {
	switch k {
	case GatedLSTM:
		return 4
	case GRU:
		return 3
	case PlainRNN:
		return 1
	default:
		return 0
	}
}

// ParseRecurrenceKind maps a configuration string onto a RecurrenceKind.
// The empty string selects GatedLSTM.
func ParseRecurrenceKind(s string) (RecurrenceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lstm", "gated-lstm", "gatedlstm":
		return GatedLSTM, nil
	case "gru":
		return GRU, nil
	case "rnn", "plain-rnn", "plainrnn":
		return PlainRNN, nil
	default:
		return 0, configErrorf("unknown recurrence kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k RecurrenceKind) MarshalText() ([]byte, error) {
	if k.gates() == 0 {
		return nil, configErrorf("unknown recurrence kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RecurrenceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRecurrenceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RecurrentCell runs one direction of a recurrence over a batch of sequences.
//
// RunSequence takes x shaped [rows, length, inputSize] and returns the hidden
// state at every step, [rows, length, hiddenSize]. With reverse set the
// sequence is consumed from the last step to the first; output position t
// still holds the state produced at input step t. The initial state is zero.
type RecurrentCell interface {
	RunSequence(x *Tensor, reverse bool) (*Tensor, error)
}

// RecurrentWeights holds the stacked gate parameters of a single direction,
// in PyTorch layout: WeightIH [gates*Hidden, Input], WeightHH [gates*Hidden, Hidden].
type RecurrentWeights struct {
	Kind     RecurrenceKind
	Input    int
	Hidden   int
	WeightIH []float32
	WeightHH []float32
	BiasIH   []float32
	BiasHH   []float32
}

// Weights exposes the parameters of any cell embedding RecurrentWeights.
func (w *RecurrentWeights) Weights() *RecurrentWeights { return w }

// ParameterCount returns the number of learned values.
func (w *RecurrentWeights) ParameterCount() int {
	return len(w.WeightIH) + len(w.WeightHH) + len(w.BiasIH) + len(w.BiasHH)
}

func newRecurrentWeights(kind RecurrenceKind, input, hidden int, rng *rand.Rand) (RecurrentWeights, error) {
	g := kind.gates()
	if g == 0 {
		return RecurrentWeights{}, configErrorf("unknown recurrence kind %d", int(kind))
	}
	if input <= 0 || hidden <= 0 {
		return RecurrentWeights{}, configErrorf("recurrence sizes must be positive, got input=%d hidden=%d", input, hidden)
	}
	w := RecurrentWeights{
		Kind:     kind,
		Input:    input,
		Hidden:   hidden,
		WeightIH: make([]float32, g*hidden*input),
		WeightHH: make([]float32, g*hidden*hidden),
		BiasIH:   make([]float32, g*hidden),
		BiasHH:   make([]float32, g*hidden),
	}
	bound := fanInBound(hidden)
	uniformFill(w.WeightIH, bound, rng)
	uniformFill(w.WeightHH, bound, rng)
	uniformFill(w.BiasIH, bound, rng)
	uniformFill(w.BiasHH, bound, rng)
	return w, nil
}

// NewRecurrentCell builds a cell of the given kind.
func NewRecurrentCell(kind RecurrenceKind, input, hidden int, rng *rand.Rand) (RecurrentCell, error) {
	w, err := newRecurrentWeights(kind, input, hidden, rng)
	if err != nil {
		return nil, err
	}
	switch kind {
	case GatedLSTM:
		return &LSTMCell{RecurrentWeights: w}, nil
	case GRU:
		return &GRUCell{RecurrentWeights: w}, nil
	default:
		return &RNNCell{RecurrentWeights: w}, nil
	}
}

// stepFunc advances one row by one step. pre and hh hold the input and
// hidden projections (gates*Hidden each, biases included); h and c are
// updated in place.
type stepFunc func(pre, hh, h, c []float32)

// run is the shared sequence driver: one GEMM for every input projection,
// then one GEMM per step for the recurrent projection.
func (w *RecurrentWeights) run(x *Tensor, reverse bool, step stepFunc) (*Tensor, error) {
	if x.Rank() != 3 || x.Shape[2] != w.Input {
		return nil, shapeErrorf("%s expects [rows, length, %d], got %v", w.Kind, w.Input, x.Shape)
	}
	rows, length := x.Shape[0], x.Shape[1]
	gh := w.Kind.gates() * w.Hidden
	out := NewTensor(rows, length, w.Hidden)
	if rows == 0 || length == 0 {
		return out, nil
	}

	// pre: [rows*length, gates*Hidden]
	pre := make([]float32, rows*length*gh)
	matMulTransB(rows*length, gh, w.Input, x.Data, w.WeightIH, 0, pre)
	addRowBias(pre, w.BiasIH)

	h := make([]float32, rows*w.Hidden)
	c := make([]float32, rows*w.Hidden)
	hh := make([]float32, rows*gh)

	for s := 0; s < length; s++ {
		t := s
		if reverse {
			t = length - 1 - s
		}
		matMulTransB(rows, gh, w.Hidden, h, w.WeightHH, 0, hh)
		addRowBias(hh, w.BiasHH)

		for r := 0; r < rows; r++ {
			hr := h[r*w.Hidden : (r+1)*w.Hidden]
			step(
				pre[(r*length+t)*gh:(r*length+t+1)*gh],
				hh[r*gh:(r+1)*gh],
				hr,
				c[r*w.Hidden:(r+1)*w.Hidden],
			)
			copy(out.Data[(r*length+t)*w.Hidden:], hr)
		}
	}
	return out, nil
}

// LSTMCell: c = f⊙c + i⊙g, h = o⊙tanh(c).
type LSTMCell struct {
	RecurrentWeights
}

func (l *LSTMCell) RunSequence(x *Tensor, reverse bool) (*Tensor, error) {
	H := l.Hidden
	return l.run(x, reverse, func(pre, hh, h, c []float32) {
		for j := 0; j < H; j++ {
			i := sigmoid(pre[j] + hh[j])
			f := sigmoid(pre[H+j] + hh[H+j])
			g := tanh(pre[2*H+j] + hh[2*H+j])
			o := sigmoid(pre[3*H+j] + hh[3*H+j])
			c[j] = f*c[j] + i*g
			h[j] = o * tanh(c[j])
		}
	})
}

// GRUCell: n = tanh(x_n + r⊙h_n), h = (1-z)⊙n + z⊙h.
type GRUCell struct {
	RecurrentWeights
}

func (g *GRUCell) RunSequence(x *Tensor, reverse bool) (*Tensor, error) {
	H := g.Hidden
	return g.run(x, reverse, func(pre, hh, h, _ []float32) {
		for j := 0; j < H; j++ {
			r := sigmoid(pre[j] + hh[j])
			z := sigmoid(pre[H+j] + hh[H+j])
			n := tanh(pre[2*H+j] + r*hh[2*H+j])
			h[j] = (1-z)*n + z*h[j]
		}
	})
}

// RNNCell: h = tanh(W_ih x + b_ih + W_hh h + b_hh).
type RNNCell struct {
	RecurrentWeights
}

func (rc *RNNCell) RunSequence(x *Tensor, reverse bool) (*Tensor, error) {
	return rc.run(x, reverse, func(pre, hh, h, _ []float32) {
		for j := range h {
			h[j] = tanh(pre[j] + hh[j])
		}
	})
}
