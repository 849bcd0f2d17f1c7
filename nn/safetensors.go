package nn

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/x448/float16"
)

// Safetensors dtypes understood by this package.
const (
	DTypeF32  = "F32"
	DTypeF16  = "F16"
	DTypeBF16 = "BF16"
)

// TensorWithShape is one named entry of a safetensors file.
type TensorWithShape struct {
	Values []float32
	Shape  []int
	DType  string // DTypeF32 when empty
}

// TensorInfo is the header record of a tensor.
type TensorInfo struct {
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset []int  `json:"data_offsets"`
}

// SaveSafetensors writes tensors to a safetensors file.
func SaveSafetensors(path string, tensors map[string]TensorWithShape) error {
	data, err := SerializeSafetensors(tensors)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SerializeSafetensors encodes tensors as
// [header size (u64 LE)] [JSON header] [tensor data], names in sorted order.
func SerializeSafetensors(tensors map[string]TensorWithShape) ([]byte, error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]TensorInfo, len(tensors))
	offset := 0
	for _, name := range names {
		t := tensors[name]
		dtype := t.DType
		if dtype == "" {
			dtype = DTypeF32
		}
		width := bytesPerElement(dtype)
		if width == 0 {
			return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, dtype)
		}
		if shapeSize(t.Shape) != len(t.Values) {
			return nil, fmt.Errorf("tensor %s: shape %v does not hold %d values", name, t.Shape, len(t.Values))
		}
		size := len(t.Values) * width
		header[name] = TensorInfo{
			DType:  dtype,
			Shape:  append([]int{}, t.Shape...),
			Offset: []int{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	headerSize := uint64(len(headerJSON))
	result := make([]byte, 8+int(headerSize)+offset)
	binary.LittleEndian.PutUint64(result[0:8], headerSize)
	copy(result[8:], headerJSON)

	body := result[8+headerSize:]
	for _, name := range names {
		info := header[name]
		writeTensorData(body[info.Offset[0]:info.Offset[1]], info.DType, tensors[name].Values)
	}
	return result, nil
}

// LoadSafetensors reads a safetensors file and returns tensors by name.
func LoadSafetensors(path string) (map[string]TensorWithShape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return LoadSafetensorsFromBytes(data)
}

// LoadSafetensorsFromBytes decodes safetensors data. F16 and BF16 values
// are widened to float32; entries with other dtypes are rejected.
func LoadSafetensorsFromBytes(data []byte) (map[string]TensorWithShape, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short: need at least 8 bytes for header size")
	}
	headerSize := binary.LittleEndian.Uint64(data[0:8])
	if headerSize > uint64(len(data)-8) {
		return nil, fmt.Errorf("data too short: header size %d but only %d bytes available", headerSize, len(data)-8)
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &rawHeader); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	body := data[8+headerSize:]

	tensors := make(map[string]TensorWithShape, len(rawHeader))
	for name, raw := range rawHeader {
		if name == "__metadata__" {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("tensor %s: bad header entry: %w", name, err)
		}
		width := bytesPerElement(info.DType)
		if width == 0 {
			return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
		}
		if len(info.Offset) != 2 {
			return nil, fmt.Errorf("tensor %s: data_offsets must have two entries", name)
		}
		count := shapeSize(info.Shape)
		start, end := info.Offset[0], info.Offset[1]
		if start < 0 || end > len(body) || end-start != count*width {
			return nil, fmt.Errorf("tensor %s: data out of bounds", name)
		}
		tensors[name] = TensorWithShape{
			Values: readTensorData(body[start:end], info.DType, count),
			Shape:  info.Shape,
			DType:  info.DType,
		}
	}
	return tensors, nil
}

func bytesPerElement(dtype string) int {
	switch dtype {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

func writeTensorData(dest []byte, dtype string, values []float32) {
	switch dtype {
	case DTypeF32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(dest[i*4:], math.Float32bits(v))
		}
	case DTypeF16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(dest[i*2:], float16.Fromfloat32(v).Bits())
		}
	case DTypeBF16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(dest[i*2:], float32ToBFloat16(v))
		}
	}
}

func readTensorData(src []byte, dtype string, count int) []float32 {
	out := make([]float32, count)
	switch dtype {
	case DTypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case DTypeF16:
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(src[i*2:])).Float32()
		}
	case DTypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(src[i*2:])) << 16)
		}
	}
	return out
}

// float32ToBFloat16 keeps the top 16 bits with round-to-nearest-even.
func float32ToBFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	if math.IsNaN(float64(f)) {
		return uint16(bits>>16) | 0x40 // quiet NaN
	}
	rounding := uint32(0x7FFF) + (bits>>16)&1
	return uint16((bits + rounding) >> 16)
}
