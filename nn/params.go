package nn

import (
	"fmt"
	"strings"
)

// NamedParameter is a live view of one learned array. Data aliases the
// layer's storage, so writes through it change the model.
type NamedParameter struct {
	Name  string
	Shape []int
	Data  []float32
}

// NamedParameters lists every learned array of the stack in a stable order.
// Names match the PyTorch BandSequenceModelModule state dict, e.g.
//
//	bsrnn.0.0.groupnorm.weight
//	bsrnn.0.1.rnn.weight_hh_l0_reverse
//	se_layers.3.fc2.weight
func (s *DualAxisStack) NamedParameters() []NamedParameter {
	var params []NamedParameter
	for _, desc := range s.plan {
		prefix := fmt.Sprintf("bsrnn.%d.%d.", desc.Layer, int(desc.Orientation))
		params = append(params, s.Blocks[desc.BlockIndex].namedParameters(prefix)...)
	}
	for i, g := range s.Gates {
		params = append(params, g.namedParameters(fmt.Sprintf("se_layers.%d.", i))...)
	}
	return params
}

func (b *AxisRecurrentBlock) namedParameters(prefix string) []NamedParameter {
	n := b.FeatureWidth
	params := []NamedParameter{
		{Name: prefix + "groupnorm.weight", Shape: []int{n}, Data: b.Norm.Gamma},
		{Name: prefix + "groupnorm.bias", Shape: []int{n}, Data: b.Norm.Beta},
	}
	for dir, cell := range b.RNN.Cells() {
		w, ok := cell.(interface{ Weights() *RecurrentWeights })
		if !ok {
			continue
		}
		rw := w.Weights()
		suffix := "_l0"
		if dir == 1 {
			suffix += "_reverse"
		}
		gh := rw.Kind.gates() * rw.Hidden
		params = append(params,
			NamedParameter{Name: prefix + "rnn.weight_ih" + suffix, Shape: []int{gh, rw.Input}, Data: rw.WeightIH},
			NamedParameter{Name: prefix + "rnn.weight_hh" + suffix, Shape: []int{gh, rw.Hidden}, Data: rw.WeightHH},
			NamedParameter{Name: prefix + "rnn.bias_ih" + suffix, Shape: []int{gh}, Data: rw.BiasIH},
			NamedParameter{Name: prefix + "rnn.bias_hh" + suffix, Shape: []int{gh}, Data: rw.BiasHH},
		)
	}
	params = append(params,
		NamedParameter{Name: prefix + "fc.weight", Shape: []int{b.Proj.Out, b.Proj.In}, Data: b.Proj.Weight},
		NamedParameter{Name: prefix + "fc.bias", Shape: []int{b.Proj.Out}, Data: b.Proj.Bias},
	)
	return params
}

// Gate projections are stored as kernel-size-1 convolutions, [out, in, 1].
func (g *ChannelGate) namedParameters(prefix string) []NamedParameter {
	return []NamedParameter{
		{Name: prefix + "fc1.weight", Shape: []int{g.Reduce.Out, g.Reduce.In, 1}, Data: g.Reduce.Weight},
		{Name: prefix + "fc2.weight", Shape: []int{g.Expand.Out, g.Expand.In, 1}, Data: g.Expand.Weight},
	}
}

// StateDict copies every parameter into a safetensors-ready map.
func (s *DualAxisStack) StateDict() map[string]TensorWithShape {
	params := s.NamedParameters()
	state := make(map[string]TensorWithShape, len(params))
	for _, p := range params {
		values := make([]float32, len(p.Data))
		copy(values, p.Data)
		state[p.Name] = TensorWithShape{Values: values, Shape: append([]int(nil), p.Shape...), DType: DTypeF32}
	}
	return state
}

// LoadStateDict copies values into the stack. Every parameter must be
// present with the right element count, otherwise ErrShapeMismatch is
// returned and the stack is left unchanged. Unknown names are ignored.
func (s *DualAxisStack) LoadStateDict(state map[string][]float32) error {
	params := s.NamedParameters()
	var missing []string
	for _, p := range params {
		values, ok := state[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		if len(values) != len(p.Data) {
			return shapeErrorf("parameter %s: want %d values %v, got %d", p.Name, len(p.Data), p.Shape, len(values))
		}
	}
	if len(missing) > 0 {
		return shapeErrorf("missing %d parameters: %s", len(missing), strings.Join(missing, ", "))
	}
	for _, p := range params {
		copy(p.Data, state[p.Name])
	}
	return nil
}

// SaveWeights writes the stack's parameters to a safetensors file.
func (s *DualAxisStack) SaveWeights(path string) error {
	return SaveSafetensors(path, s.StateDict())
}

// LoadWeights restores parameters from a safetensors file.
func (s *DualAxisStack) LoadWeights(path string) error {
	tensors, err := LoadSafetensors(path)
	if err != nil {
		return err
	}
	state := make(map[string][]float32, len(tensors))
	for name, t := range tensors {
		state[name] = t.Values
	}
	return s.LoadStateDict(state)
}
