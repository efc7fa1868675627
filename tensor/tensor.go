package tensor

import "fmt"

// DType represents the element type of tensor data
type DType int

const (
	BFloat16 DType = iota
	Float16
	Float32
	Int8
)

// Size returns the width of one element in bytes
func (d DType) Size() int {
	switch d {
	case BFloat16, Float16:
		return 2
	case Float32:
		return 4
	case Int8:
		return 1
	default:
		panic(fmt.Sprintf("unsupported data type: %d", d))
	}
}

func (d DType) String() string {
	switch d {
	case BFloat16:
		return "bfloat16"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Tensor is a handle to row-major host data plus its dimensions. The engine
// never takes ownership of Data; it copies bytes in and out of device buffers.
type Tensor struct {
	Data  []byte
	Shape []int
	DType DType
}

// New wraps existing host bytes in a tensor handle. The data slice is
// referenced, not copied.
func New(data []byte, shape []int, dtype DType) Tensor {
	return Tensor{Data: data, Shape: shape, DType: dtype}
}

// Zeros allocates a zero-filled tensor of the given shape
func Zeros(shape []int, dtype DType) Tensor {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return Tensor{
		Data:  make([]byte, n*dtype.Size()),
		Shape: shape,
		DType: dtype,
	}
}

// NumElements returns the product of all dimensions
func (t Tensor) NumElements() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// NumBytes returns the total payload size in bytes
func (t Tensor) NumBytes() int {
	return t.NumElements() * t.DType.Size()
}

// Rank returns the number of dimensions
func (t Tensor) Rank() int {
	return len(t.Shape)
}

func (t Tensor) String() string {
	return fmt.Sprintf("Tensor{shape=%v, dtype=%s, bytes=%d}", t.Shape, t.DType, len(t.Data))
}
