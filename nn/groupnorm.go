package nn

import "math"

// GroupNorm normalizes a channels-last [rows, length, channels] tensor.
// Statistics are taken per (row, group) over length × channels/Groups values
// (biased variance), then a per-channel affine Gamma/Beta is applied.
// With Groups == Channels every channel of every row is normalized over length.
type GroupNorm struct {
	Groups   int
	Channels int
	Gamma    []float32 // [Channels]
	Beta     []float32 // [Channels]
	Epsilon  float64
}

// NewGroupNorm returns a GroupNorm with unit scale and zero shift.
func NewGroupNorm(groups, channels int, epsilon float64) (*GroupNorm, error) {
	if groups <= 0 || channels <= 0 {
		return nil, configErrorf("group norm needs positive groups and channels, got %d/%d", groups, channels)
	}
	if channels%groups != 0 {
		return nil, configErrorf("group norm channels %d not divisible by groups %d", channels, groups)
	}
	if epsilon <= 0 {
		epsilon = 1e-5
	}
	gn := &GroupNorm{
		Groups:   groups,
		Channels: channels,
		Gamma:    make([]float32, channels),
		Beta:     make([]float32, channels),
		Epsilon:  epsilon,
	}
	for i := range gn.Gamma {
		gn.Gamma[i] = 1
	}
	return gn, nil
}

// Forward normalizes x of shape [rows, length, Channels] and returns a new tensor.
func (gn *GroupNorm) Forward(x *Tensor) (*Tensor, error) {
	if x.Rank() != 3 || x.Shape[2] != gn.Channels {
		return nil, shapeErrorf("group norm expects [rows, length, %d], got %v", gn.Channels, x.Shape)
	}
	rows, length := x.Shape[0], x.Shape[1]
	out := NewTensor(x.Shape...)
	if length == 0 {
		return out, nil
	}

	perGroup := gn.Channels / gn.Groups
	count := float64(length * perGroup)

	for r := 0; r < rows; r++ {
		base := r * length * gn.Channels
		for g := 0; g < gn.Groups; g++ {
			c0 := g * perGroup

			var sum float64
			for l := 0; l < length; l++ {
				off := base + l*gn.Channels + c0
				for c := 0; c < perGroup; c++ {
					sum += float64(x.Data[off+c])
				}
			}
			mean := sum / count

			var variance float64
			for l := 0; l < length; l++ {
				off := base + l*gn.Channels + c0
				for c := 0; c < perGroup; c++ {
					d := float64(x.Data[off+c]) - mean
					variance += d * d
				}
			}
			variance /= count
			invStd := 1.0 / math.Sqrt(variance+gn.Epsilon)

			for l := 0; l < length; l++ {
				off := base + l*gn.Channels + c0
				for c := 0; c < perGroup; c++ {
					ch := c0 + c
					normalized := (float64(x.Data[off+c]) - mean) * invStd
					out.Data[off+c] = float32(normalized*float64(gn.Gamma[ch]) + float64(gn.Beta[ch]))
				}
			}
		}
	}
	return out, nil
}

// ParameterCount returns the number of learned values.
func (gn *GroupNorm) ParameterCount() int {
	return len(gn.Gamma) + len(gn.Beta)
}
