package nn

import "fmt"

// Tensor is a dense row-major float32 tensor. Data is always contiguous;
// Strides is derived from Shape.
type Tensor struct {
	Data    []float32
	Shape   []int
	Strides []int
}

// NewTensor allocates a zero-filled tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{
		Data:    make([]float32, shapeSize(shape)),
		Shape:   append([]int(nil), shape...),
		Strides: rowMajorStrides(shape),
	}
}

// NewTensorFromSlice wraps data with the given shape. The slice is not copied.
// Returns nil if len(data) does not match the shape.
func NewTensorFromSlice(data []float32, shape ...int) *Tensor {
	if len(data) != shapeSize(shape) {
		return nil
	}
	return &Tensor{
		Data:    data,
		Shape:   append([]int(nil), shape...),
		Strides: rowMajorStrides(shape),
	}
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{
		Data:    data,
		Shape:   append([]int(nil), t.Shape...),
		Strides: append([]int(nil), t.Strides...),
	}
}

// Reshape returns a view sharing Data with a new shape.
// Returns nil if the element count differs.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if shapeSize(shape) != len(t.Data) {
		return nil
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   append([]int(nil), shape...),
		Strides: rowMajorStrides(shape),
	}
}

// Permute returns a contiguous copy with axes reordered so that
// out.Shape[i] == t.Shape[axes[i]]. Returns nil for an invalid permutation.
func (t *Tensor) Permute(axes ...int) *Tensor {
	rank := len(t.Shape)
	if len(axes) != rank {
		return nil
	}
	strides := rowMajorStrides(t.Shape)
	seen := make([]bool, rank)
	outShape := make([]int, rank)
	srcStrides := make([]int, rank)
	for i, a := range axes {
		if a < 0 || a >= rank || seen[a] {
			return nil
		}
		seen[a] = true
		outShape[i] = t.Shape[a]
		srcStrides[i] = strides[a]
	}

	out := NewTensor(outShape...)
	if out.Size() == 0 {
		return out
	}

	idx := make([]int, rank)
	src := 0
	for dst := range out.Data {
		out.Data[dst] = t.Data[src]
		// Odometer increment over the output index, tracking the source offset.
		for ax := rank - 1; ax >= 0; ax-- {
			idx[ax]++
			src += srcStrides[ax]
			if idx[ax] < outShape[ax] {
				break
			}
			src -= srcStrides[ax] * outShape[ax]
			idx[ax] = 0
		}
	}
	return out
}

// SwapAxes12 turns [A, B, C, D] into [A, C, B, D].
func (t *Tensor) SwapAxes12() *Tensor {
	return t.Permute(0, 2, 1, 3)
}

// checkTensor reports ErrShapeMismatch for a nil tensor or one whose Data
// does not hold exactly the elements its Shape describes.
func checkTensor(t *Tensor, what string) error {
	if t == nil {
		return shapeErrorf("%s: nil input tensor", what)
	}
	for _, d := range t.Shape {
		if d < 0 {
			return shapeErrorf("%s: negative dimension in %v", what, t.Shape)
		}
	}
	if len(t.Data) != shapeSize(t.Shape) {
		return shapeErrorf("%s: %d values do not fill shape %v", what, len(t.Data), t.Shape)
	}
	return nil
}

// ShapeEqual reports whether two tensors have identical shapes.
func (t *Tensor) ShapeEqual(other *Tensor) bool {
	return shapeEqual(t.Shape, other.Shape)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
