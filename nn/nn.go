// Package nn implements the band-sequence stage of a band-split music source
// separation model: a stack of recurrent blocks that alternate between the
// time axis and the band axis of a [batch, bands, time, features] tensor,
// each followed by a squeeze-and-excite channel gate.
//
// Data flow for one layer of a DualAxisStack:
//
//	[B,K,T,N] -> time block -> [B,T,K,N] -> gate (pooled over K)
//	          -> band block -> [B,K,T,N] -> gate (pooled over T)
//
// Each block folds the leading two axes into rows, applies per-channel group
// normalization, a (bi)directional LSTM/GRU/RNN along axis 2, a linear
// projection back to N features and a residual add, then swaps axes 1 and 2.
//
// Example usage:
//
//	cfg := nn.DefaultStackConfig(128, 256)
//	stack, err := nn.NewDualAxisStack(cfg)
//	if err != nil {
//		return err
//	}
//	out, err := stack.Forward(x) // x: [B, K, T, 128]
//
// Parameters are exposed by name (NamedParameters, StateDict) and persist
// as safetensors (SaveWeights, LoadWeights). The elementwise stages can be
// moved to a GPU by passing a gpu.Accelerator to SetAccelerator.
//
// Only inference is implemented; there is no backward pass.
package nn
