package nn

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func TestNamedParametersStableAndComplete(t *testing.T) {
	stack, _ := NewDualAxisStack(smallStackConfig())
	params := stack.NamedParameters()

	seen := map[string]bool{}
	total := 0
	for _, p := range params {
		if seen[p.Name] {
			t.Errorf("duplicate parameter name %s", p.Name)
		}
		seen[p.Name] = true
		if shapeSize(p.Shape) != len(p.Data) {
			t.Errorf("%s: shape %v does not match %d values", p.Name, p.Shape, len(p.Data))
		}
		total += len(p.Data)
	}
	if total != stack.ParameterCount() {
		t.Errorf("named parameters hold %d values, ParameterCount is %d", total, stack.ParameterCount())
	}

	for _, name := range []string{
		"bsrnn.0.0.groupnorm.weight",
		"bsrnn.0.0.rnn.weight_ih_l0",
		"bsrnn.0.1.rnn.bias_hh_l0_reverse",
		"bsrnn.0.1.fc.bias",
		"se_layers.0.fc1.weight",
		"se_layers.1.fc2.weight",
	} {
		if !seen[name] {
			t.Errorf("missing parameter %s", name)
		}
	}

	again := stack.NamedParameters()
	for i := range params {
		if params[i].Name != again[i].Name {
			t.Fatalf("order changed at %d: %s vs %s", i, params[i].Name, again[i].Name)
		}
	}
}

func TestNamedParameterShapes(t *testing.T) {
	stack, _ := NewDualAxisStack(smallStackConfig())
	want := map[string][]int{
		"bsrnn.0.0.rnn.weight_ih_l0": {128, 16},
		"bsrnn.0.0.rnn.weight_hh_l0": {128, 32},
		"bsrnn.0.0.fc.weight":        {16, 64},
		"se_layers.0.fc1.weight":     {1, 16, 1},
		"se_layers.0.fc2.weight":     {16, 1, 1},
	}
	for _, p := range stack.NamedParameters() {
		if shape, ok := want[p.Name]; ok && !shapeEqual(shape, p.Shape) {
			t.Errorf("%s: expected %v, got %v", p.Name, shape, p.Shape)
		}
	}
}

func TestUnidirectionalHasNoReverseWeights(t *testing.T) {
	cfg := smallStackConfig()
	bidi := false
	cfg.Bidirectional = &bidi
	stack, _ := NewDualAxisStack(cfg)
	for _, p := range stack.NamedParameters() {
		if strings.HasSuffix(p.Name, "_reverse") {
			t.Errorf("unexpected %s", p.Name)
		}
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	src, _ := NewDualAxisStack(smallStackConfig())
	cfg := smallStackConfig()
	cfg.Seed = 99
	dst, _ := NewDualAxisStack(cfg)

	x := randomTensor(5, 1, 3, 4, 16)
	want, _ := src.Forward(x)
	before, _ := dst.Forward(x)
	if before.Data[0] == want.Data[0] && before.Data[1] == want.Data[1] {
		t.Fatal("differently seeded stacks should not agree")
	}

	path := filepath.Join(t.TempDir(), "stack.safetensors")
	if err := src.SaveWeights(path); err != nil {
		t.Fatal(err)
	}
	if err := dst.LoadWeights(path); err != nil {
		t.Fatal(err)
	}
	got, err := dst.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatalf("output differs at %d after loading weights", i)
		}
	}
}

func TestLoadStateDictRejectsIncomplete(t *testing.T) {
	stack, _ := NewDualAxisStack(smallStackConfig())
	x := randomTensor(6, 1, 2, 2, 16)
	want, _ := stack.Forward(x)

	state := map[string][]float32{}
	for name, tw := range stack.StateDict() {
		for i := range tw.Values {
			tw.Values[i] = 0
		}
		state[name] = tw.Values
	}
	delete(state, "bsrnn.0.1.fc.bias")
	state["unrelated.weight"] = []float32{1}

	if err := stack.LoadStateDict(state); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	got, _ := stack.Forward(x)
	for i := range want.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatal("stack changed after a rejected load")
		}
	}

	state["bsrnn.0.1.fc.bias"] = make([]float32, 3)
	if err := stack.LoadStateDict(state); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for a short tensor, got %v", err)
	}

	state["bsrnn.0.1.fc.bias"] = make([]float32, 16)
	if err := stack.LoadStateDict(state); err != nil {
		t.Fatalf("complete state rejected: %v", err)
	}
}

func TestSafetensorsDTypes(t *testing.T) {
	values := []float32{0, 1, -2.5, 0.333, 1000}
	tensors := map[string]TensorWithShape{
		"a": {Values: values, Shape: []int{5}},
		"b": {Values: values, Shape: []int{1, 5}, DType: DTypeF16},
		"c": {Values: values, Shape: []int{5, 1}, DType: DTypeBF16},
	}
	data, err := SerializeSafetensors(tensors)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSafetensorsFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		dtype string
		tol   float64
	}{
		{"a", DTypeF32, 0},
		{"b", DTypeF16, 1e-3},
		{"c", DTypeBF16, 1e-2},
	}
	for _, tt := range tests {
		got, ok := loaded[tt.name]
		if !ok {
			t.Fatalf("tensor %s missing", tt.name)
		}
		if got.DType != tt.dtype || !shapeEqual(got.Shape, tensors[tt.name].Shape) {
			t.Errorf("%s: dtype %s shape %v", tt.name, got.DType, got.Shape)
		}
		for i, v := range values {
			rel := math.Abs(float64(got.Values[i]-v)) / math.Max(1, math.Abs(float64(v)))
			if rel > tt.tol {
				t.Errorf("%s[%d]: expected %v, got %v", tt.name, i, v, got.Values[i])
			}
		}
	}
}

func TestSafetensorsRejectsBadInput(t *testing.T) {
	if _, err := SerializeSafetensors(map[string]TensorWithShape{
		"x": {Values: []float32{1, 2, 3}, Shape: []int{2, 2}},
	}); err == nil {
		t.Error("expected error for shape/value mismatch")
	}
	if _, err := SerializeSafetensors(map[string]TensorWithShape{
		"x": {Values: []float32{1}, Shape: []int{1}, DType: "I8"},
	}); err == nil {
		t.Error("expected error for unsupported dtype")
	}

	good, _ := SerializeSafetensors(map[string]TensorWithShape{
		"x": {Values: []float32{1, 2}, Shape: []int{2}},
	})
	for name, data := range map[string][]byte{
		"empty":        nil,
		"short header": {200, 0, 0, 0, 0, 0, 0, 0, '{', '}'},
		"bad json":     append([]byte{3, 0, 0, 0, 0, 0, 0, 0}, "{x}"...),
		"truncated":    good[:len(good)-1],
	} {
		if _, err := LoadSafetensorsFromBytes(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestBFloat16Rounding(t *testing.T) {
	tests := []struct {
		in   float32
		want uint16
	}{
		{1, 0x3F80},
		{-2, 0xC000},
		{math.Float32frombits(0x3F808000), 0x3F80}, // tie, even stays
		{math.Float32frombits(0x3F818000), 0x3F82}, // tie, odd rounds up
		{math.Float32frombits(0x3F808001), 0x3F81},
	}
	for _, tt := range tests {
		if got := float32ToBFloat16(tt.in); got != tt.want {
			t.Errorf("float32ToBFloat16(%v) = %#04x, want %#04x", tt.in, got, tt.want)
		}
	}
	nan := float32ToBFloat16(float32(math.NaN()))
	if !math.IsNaN(float64(math.Float32frombits(uint32(nan) << 16))) {
		t.Errorf("NaN not preserved: %#04x", nan)
	}
}
