package nn

import (
	"math"
	"math/rand"
)

// uniformFill draws every element from U(-bound, bound).
func uniformFill(dst []float32, bound float64, rng *rand.Rand) {
	for i := range dst {
		dst[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// fanInBound is the 1/sqrt(fanIn) bound used for projections and recurrences.
func fanInBound(fanIn int) float64 {
	if fanIn <= 0 {
		return 0
	}
	return 1.0 / math.Sqrt(float64(fanIn))
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
