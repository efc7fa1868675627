package rmsnorm

import (
	"fmt"

	"github.com/axon-accel/go-npu/ops"
	"github.com/axon-accel/go-npu/tensor"
)

// Shape is one supported (rows, cols) catalog entry
type Shape struct {
	Rows int
	Cols int
}

// operandHeaders maps an element type to the transaction filename header the
// kernel build pipeline uses for it.
var operandHeaders = map[tensor.DType]string{
	tensor.BFloat16: "a16",
}

// catalog lists, per operator prefix, the shapes the precompiled kernels can
// execute. Fixed configuration data: entries match the transactions shipped
// with the accelerator image, so membership is exact, with no nearest-shape
// fallback.
var catalog = map[string][]Shape{
	"rmsnorm_a16": {
		{2048, 4096},
		{1024, 4096},
		{512, 4096},
		{256, 4096},
		{128, 4096},
	},
}

// instrKey builds the registry key for one shape: the operator-type prefix
// concatenated with the row and column counts.
func instrKey(prefix string, rows, cols int) string {
	return fmt.Sprintf("mladfrmsnorm_%s_%d_%d", prefix, rows, cols)
}

// SupportedShapes returns the catalog for an element type, or nil if the
// type has no precompiled kernels.
func SupportedShapes(dtype tensor.DType) []Shape {
	header, ok := operandHeaders[dtype]
	if !ok {
		return nil
	}
	shapes := catalog["rmsnorm_"+header]
	out := make([]Shape, len(shapes))
	copy(out, shapes)
	return out
}

// TransactionKey returns the store key for one shape's instruction stream.
// Shipping tooling uses this to name transaction blobs so the engine can
// find them.
func TransactionKey(dtype tensor.DType, rows, cols int) (string, error) {
	header, ok := operandHeaders[dtype]
	if !ok {
		return "", fmt.Errorf("no transactions for element type %s: %w", dtype, ops.ErrConfiguration)
	}
	return instrKey("rmsnorm_"+header, rows, cols), nil
}

// extractRowsCols pulls (rows, cols) out of a rank-2 tensor
func extractRowsCols(t tensor.Tensor) (int, int, error) {
	if t.Rank() != 2 {
		return 0, 0, fmt.Errorf("rmsnorm expects a rank 2 tensor [rows, cols], got rank %d: %w", t.Rank(), ops.ErrShape)
	}
	return t.Shape[0], t.Shape[1], nil
}

// IsSupportedShape reports whether the operand's shape is in the catalog for
// this engine's variant. A rank other than 2 fails with ops.ErrShape.
func (r *RMSNorm) IsSupportedShape(operand tensor.Tensor) (bool, error) {
	rows, cols, err := extractRowsCols(operand)
	if err != nil {
		return false, err
	}
	for _, s := range r.shapes {
		if s.Rows == rows && s.Cols == cols {
			return true, nil
		}
	}
	return false, nil
}

// maxOperandBytes returns the byte size of the largest catalog shape, used to
// size the input and output buffers once at construction.
func maxOperandBytes(shapes []Shape, elemSize int) int {
	max := 0
	for _, s := range shapes {
		if n := s.Rows * s.Cols * elemSize; n > max {
			max = n
		}
	}
	return max
}

// maxWeightBytes sizes the weight buffer from the column dimension only:
// weights are a 1-D vector broadcast over rows, never a 2-D matrix.
func maxWeightBytes(shapes []Shape, elemSize int) int {
	max := 0
	for _, s := range shapes {
		if n := s.Cols * elemSize; n > max {
			max = n
		}
	}
	return max
}
