package nn

import (
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// BiRecurrent runs a forward cell and, when bidirectional, a reverse cell
// over the same sequences and concatenates their features: [fwd | rev].
type BiRecurrent struct {
	Forward  RecurrentCell
	Reverse  RecurrentCell // nil when unidirectional
	Hidden   int
	Parallel bool // run the two directions on separate goroutines
}

// NewBiRecurrent builds one or two cells of the same kind.
func NewBiRecurrent(kind RecurrenceKind, input, hidden int, bidirectional bool, rng *rand.Rand) (*BiRecurrent, error) {
	fwd, err := NewRecurrentCell(kind, input, hidden, rng)
	if err != nil {
		return nil, err
	}
	br := &BiRecurrent{Forward: fwd, Hidden: hidden}
	if bidirectional {
		br.Reverse, err = NewRecurrentCell(kind, input, hidden, rng)
		if err != nil {
			return nil, err
		}
	}
	return br, nil
}

// Directions is 2 for a bidirectional recurrence, otherwise 1.
func (br *BiRecurrent) Directions() int {
	if br.Reverse != nil {
		return 2
	}
	return 1
}

// OutputSize is the feature width of Run's output.
func (br *BiRecurrent) OutputSize() int {
	return br.Directions() * br.Hidden
}

// Run maps [rows, length, input] to [rows, length, Directions()*Hidden].
func (br *BiRecurrent) Run(x *Tensor) (*Tensor, error) {
	if br.Reverse == nil {
		return br.Forward.RunSequence(x, false)
	}

	var fwd, rev *Tensor
	if br.Parallel {
		var g errgroup.Group
		g.Go(func() (err error) {
			fwd, err = br.Forward.RunSequence(x, false)
			return err
		})
		g.Go(func() (err error) {
			rev, err = br.Reverse.RunSequence(x, true)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if fwd, err = br.Forward.RunSequence(x, false); err != nil {
			return nil, err
		}
		if rev, err = br.Reverse.RunSequence(x, true); err != nil {
			return nil, err
		}
	}
	return concatLastAxis(fwd, rev), nil
}

// concatLastAxis joins two [..., a] and [..., b] tensors with equal leading axes.
func concatLastAxis(a, b *Tensor) *Tensor {
	wa := a.Shape[a.Rank()-1]
	wb := b.Shape[b.Rank()-1]
	shape := append([]int(nil), a.Shape...)
	shape[len(shape)-1] = wa + wb
	out := NewTensor(shape...)
	rows := 0
	if wa > 0 {
		rows = a.Size() / wa
	}
	for r := 0; r < rows; r++ {
		dst := out.Data[r*(wa+wb):]
		copy(dst[:wa], a.Data[r*wa:(r+1)*wa])
		copy(dst[wa:wa+wb], b.Data[r*wb:(r+1)*wb])
	}
	return out
}

// Cells lists the direction cells, forward first.
func (br *BiRecurrent) Cells() []RecurrentCell {
	if br.Reverse == nil {
		return []RecurrentCell{br.Forward}
	}
	return []RecurrentCell{br.Forward, br.Reverse}
}
