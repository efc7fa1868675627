// Package ops is the operator framework shared by every accelerator operator:
// the host-facing Operator contract, buffer requirement records for
// allocation planning, the error taxonomy, and per-call profiling.
package ops

import (
	"github.com/axon-accel/go-npu/tensor"
)

// ArgRole classifies a buffer requirement
type ArgRole int

const (
	RoleInput ArgRole = iota
	RoleOutput
)

func (r ArgRole) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	default:
		return "unknown"
	}
}

// BufferRequirement describes one device buffer an operator needs for a
// concrete call shape. The host allocator consumes these before dispatch;
// they are not retained by the engine.
type BufferRequirement struct {
	Role        ArgRole
	TensorIndex int
	BufferIndex int
	Offset      uint64
	Size        uint64
}

// Operator is the contract an operator engine presents to the host dispatch
// framework. Execute mutates outputs in place and blocks until the hardware
// invocation completes.
type Operator interface {
	Execute(inputs []tensor.Tensor, outputs []tensor.Tensor) error

	// BufferRequirements computes the device buffer sizes a call with
	// these shapes needs. Pure; independent of the engine's own
	// worst-case allocation.
	BufferRequirements(inputs, outputs []tensor.Tensor, attrs map[string]any) ([]BufferRequirement, error)

	// TransactionBytes returns the raw precompiled instruction stream the
	// given shapes resolve to.
	TransactionBytes(inputs, outputs []tensor.Tensor, attrs map[string]any) ([]byte, error)

	// Debug toggles per-call profile logging at default verbosity
	Debug(enable bool)
}
