package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// matMulTransB computes c = a @ bᵀ + beta*c.
// a: [m, k], b: [n, k] (PyTorch weight layout), c: [m, n].
func matMulTransB(m, n, k int, a, b []float32, beta float32, c []float32) {
	if m == 0 || n == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: n, Cols: k, Stride: k, Data: b},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}

// addRowBias adds bias[j] to every row of x viewed as [rows, len(bias)].
func addRowBias(x, bias []float32) {
	n := len(bias)
	if n == 0 {
		return
	}
	for off := 0; off+n <= len(x); off += n {
		blas32.Axpy(1, blas32.Vector{N: n, Inc: 1, Data: bias}, blas32.Vector{N: n, Inc: 1, Data: x[off : off+n]})
	}
}
