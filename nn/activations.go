package nn

import "math"

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

func tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

func relu(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x
}
