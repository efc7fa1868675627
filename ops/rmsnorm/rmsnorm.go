// Package rmsnorm drives the precompiled RMS-normalization kernels. The
// engine validates a call's shape against the catalog of shipped kernel
// shapes, stages operand bytes into three device buffers allocated once for
// the worst case, resolves the shape's instruction stream from the shared
// registry, and submits one synchronous hardware invocation per call.
package rmsnorm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/axon-accel/go-npu/device"
	"github.com/axon-accel/go-npu/ops"
	"github.com/axon-accel/go-npu/registry"
	"github.com/axon-accel/go-npu/tensor"
	"github.com/axon-accel/go-npu/txn"
)

// runOpcode is the dispatch opcode the accelerator image assigns to
// transaction execution.
const runOpcode = 2

// Kernel argument slots for the three operand buffers
const operandBufferSlot = 0

// instanceCount assigns identity numbers across concurrently constructed
// engines.
var instanceCount atomic.Uint64

// RMSNorm is one operator engine instance. It owns its three device buffers
// exclusively; Execute is not safe for concurrent calls on the same
// instance. Instances sharing a hardware context rely on that context to
// serialize submissions.
type RMSNorm struct {
	id     uint64
	dtype  tensor.DType
	width  int
	prefix string
	shapes []Shape

	hw    device.Context
	reg   *registry.Registry
	store txn.Store

	inputBuf  device.Buffer
	weightBuf device.Buffer
	outputBuf device.Buffer

	debug         bool
	lastProfile   ops.Profile
	profileWriter *ops.ProfileWriter
}

var _ ops.Operator = (*RMSNorm)(nil)

// New constructs an engine bound to a hardware context. It allocates the
// three device buffers for the largest catalog shape and runs the shared
// instruction-registry setup for every catalog key; only the first instance
// per process actually populates the registry.
func New(ctx context.Context, dtype tensor.DType, hw device.Context, store txn.Store) (*RMSNorm, error) {
	r, err := newEngine(dtype, store)
	if err != nil {
		return nil, err
	}
	r.hw = hw
	r.reg = registry.Shared()

	operandBytes := maxOperandBytes(r.shapes, r.width)
	weightBytes := maxWeightBytes(r.shapes, r.width)
	groupID := hw.GroupID(operandBufferSlot)

	if r.inputBuf, err = hw.Device().NewBuffer(operandBytes, groupID); err != nil {
		return nil, fmt.Errorf("allocating input buffer: %w", err)
	}
	if r.weightBuf, err = hw.Device().NewBuffer(weightBytes, groupID); err != nil {
		return nil, fmt.Errorf("allocating weight buffer: %w", err)
	}
	if r.outputBuf, err = hw.Device().NewBuffer(operandBytes, groupID); err != nil {
		return nil, fmt.Errorf("allocating output buffer: %w", err)
	}

	keys := make([]string, len(r.shapes))
	for i, s := range r.shapes {
		keys[i] = instrKey(r.prefix, s.Rows, s.Cols)
	}
	if err := r.reg.SetupOnce(ctx, hw, store, r.prefix, keys); err != nil {
		return nil, fmt.Errorf("setting up instruction registry: %w", err)
	}

	klog.FromContext(ctx).V(1).Info("rmsnorm engine constructed",
		"id", r.id, "dtype", dtype, "shapes", len(r.shapes),
		"operandBufferBytes", operandBytes, "weightBufferBytes", weightBytes)
	return r, nil
}

// NewOffline constructs an engine with no hardware context, for allocation
// planning and transaction retrieval only. Execute on an offline engine
// fails. The store may be nil if TransactionBytes is not needed.
func NewOffline(dtype tensor.DType, store txn.Store) (*RMSNorm, error) {
	return newEngine(dtype, store)
}

func newEngine(dtype tensor.DType, store txn.Store) (*RMSNorm, error) {
	header, ok := operandHeaders[dtype]
	if !ok {
		return nil, fmt.Errorf("rmsnorm only supports homogeneous bfloat16 activation, weights and result, got %s: %w", dtype, ops.ErrConfiguration)
	}
	prefix := "rmsnorm_" + header
	return &RMSNorm{
		id:     instanceCount.Add(1) - 1,
		dtype:  dtype,
		width:  dtype.Size(),
		prefix: prefix,
		shapes: catalog[prefix],
		store:  store,
	}, nil
}

// ID returns the engine's process-wide identity number
func (r *RMSNorm) ID() uint64 { return r.id }

// Debug raises the per-call profile log from verbosity 2 to unconditional
func (r *RMSNorm) Debug(enable bool) { r.debug = enable }

// SetProfileWriter additionally appends each call's profile record to w
func (r *RMSNorm) SetProfileWriter(w *ops.ProfileWriter) { r.profileWriter = w }

// LastProfile returns the timing record of the most recent Execute call
func (r *RMSNorm) LastProfile() ops.Profile { return r.lastProfile }

// Execute runs one normalization call. inputs[0] is the activation
// (rows, cols), inputs[1] the weight vector (cols); outputs[0] receives the
// result in place. The call blocks until the hardware invocation completes.
// All validation happens before any buffer is touched, so a failed call
// leaves the previous call's staged bytes undisturbed.
func (r *RMSNorm) Execute(inputs []tensor.Tensor, outputs []tensor.Tensor) error {
	if r.hw == nil {
		return fmt.Errorf("engine was constructed offline: %w", ops.ErrConfiguration)
	}
	if len(inputs) != 2 || len(outputs) != 1 {
		return fmt.Errorf("rmsnorm takes 2 inputs and 1 output, got %d and %d: %w", len(inputs), len(outputs), ops.ErrShapeMismatch)
	}
	activation, weights, result := inputs[0], inputs[1], outputs[0]

	p := ops.Profile{InstanceID: r.id, Batch: 1}
	execStart := time.Now()

	// Validate
	rows, cols, err := extractRowsCols(activation)
	if err != nil {
		return err
	}
	supported, err := r.IsSupportedShape(activation)
	if err != nil {
		return err
	}
	if !supported {
		return fmt.Errorf("rmsnorm %dx%d: %w", rows, cols, ops.ErrUnsupportedShape)
	}
	p.Rows, p.Cols = rows, cols

	if weights.NumElements() != cols {
		return fmt.Errorf("weight vector has %d elements, activation has %d columns: %w", weights.NumElements(), cols, ops.ErrShapeMismatch)
	}
	operandBytes := rows * cols * r.width
	weightBytes := weights.NumElements() * r.width
	if len(activation.Data) < operandBytes {
		return fmt.Errorf("activation data is %d bytes, shape %dx%d needs %d: %w", len(activation.Data), rows, cols, operandBytes, ops.ErrShapeMismatch)
	}
	if len(weights.Data) < weightBytes {
		return fmt.Errorf("weight data is %d bytes, %d columns need %d: %w", len(weights.Data), cols, weightBytes, ops.ErrShapeMismatch)
	}
	if len(result.Data) < operandBytes {
		return fmt.Errorf("output data is %d bytes, shape %dx%d needs %d: %w", len(result.Data), rows, cols, operandBytes, ops.ErrShapeMismatch)
	}

	// StageInput
	copyStart := time.Now()
	copy(r.inputBuf.Map(), activation.Data[:operandBytes])
	p.InputCopy = time.Since(copyStart)

	syncStart := time.Now()
	if err := r.inputBuf.SyncToDevice(); err != nil {
		return fmt.Errorf("syncing input buffer to device: %w", err)
	}
	p.InputSync = time.Since(syncStart)

	// StageWeight
	copyStart = time.Now()
	copy(r.weightBuf.Map(), weights.Data[:weightBytes])
	p.WeightCopy = time.Since(copyStart)

	syncStart = time.Now()
	if err := r.weightBuf.SyncToDevice(); err != nil {
		return fmt.Errorf("syncing weight buffer to device: %w", err)
	}
	p.WeightSync = time.Since(syncStart)

	// ResolveInstruction
	instr, err := r.reg.Lookup(instrKey(r.prefix, rows, cols))
	if err != nil {
		return err
	}

	// Submit + Await: one invocation per call, synchronous wait, no timeout
	runStart := time.Now()
	run, err := r.hw.Kernel().Run(runOpcode, instr.Buffer(), instr.Words(),
		device.AIEAddress(r.inputBuf),
		device.AIEAddress(r.weightBuf),
		device.AIEAddress(r.outputBuf),
		0, 0)
	if err != nil {
		return fmt.Errorf("submitting kernel run: %w", err)
	}
	if err := run.Wait(); err != nil {
		return fmt.Errorf("waiting for kernel run: %w", err)
	}
	p.RunTime += time.Since(runStart)
	p.Runs++

	// Retrieve
	syncStart = time.Now()
	if err := r.outputBuf.SyncFromDevice(); err != nil {
		return fmt.Errorf("syncing output buffer from device: %w", err)
	}
	p.OutputSync = time.Since(syncStart)

	copyStart = time.Now()
	copy(result.Data[:operandBytes], r.outputBuf.Map())
	p.OutputCopy = time.Since(copyStart)

	// Done
	p.Total = time.Since(execStart)
	r.lastProfile = p
	r.emitProfile(&p)
	return nil
}

func (r *RMSNorm) emitProfile(p *ops.Profile) {
	if r.debug {
		klog.InfoS("rmsnorm execute", p.LogValues()...)
	} else {
		klog.V(2).InfoS("rmsnorm execute", p.LogValues()...)
	}
	if r.profileWriter != nil {
		if err := r.profileWriter.Write(p); err != nil {
			klog.ErrorS(err, "writing profile record", "id", r.id)
		}
	}
}

// BufferRequirements computes the device buffer sizes a call with these
// shapes needs, for host-side allocation planning. Pure: nothing is staged
// and the engine's own worst-case buffers are not consulted. Sizes come from
// the actual shapes, not the catalog maximum.
func (r *RMSNorm) BufferRequirements(inputs, outputs []tensor.Tensor, attrs map[string]any) ([]ops.BufferRequirement, error) {
	if len(inputs) != 2 || len(outputs) != 1 {
		return nil, fmt.Errorf("rmsnorm takes 2 inputs and 1 output, got %d and %d: %w", len(inputs), len(outputs), ops.ErrShapeMismatch)
	}

	operandRows, operandCols, err := extractRowsCols(inputs[0])
	if err != nil {
		return nil, err
	}
	resultRows, resultCols, err := extractRowsCols(outputs[0])
	if err != nil {
		return nil, err
	}
	if len(inputs[1].Shape) == 0 {
		return nil, fmt.Errorf("weight tensor has no dimensions: %w", ops.ErrShapeMismatch)
	}
	weightLen := inputs[1].Shape[0]

	if operandRows != resultRows || operandCols != resultCols {
		return nil, fmt.Errorf("activation shape %dx%d does not match result shape %dx%d: %w",
			operandRows, operandCols, resultRows, resultCols, ops.ErrShapeMismatch)
	}
	if weightLen != resultCols {
		return nil, fmt.Errorf("weight vector length %d does not match %d columns: %w", weightLen, resultCols, ops.ErrShapeMismatch)
	}

	operandBytes := uint64(operandRows) * uint64(operandCols) * uint64(r.width)
	weightBytes := uint64(weightLen) * uint64(r.width)

	return []ops.BufferRequirement{
		{Role: ops.RoleInput, TensorIndex: 0, BufferIndex: 0, Offset: 0, Size: operandBytes},
		{Role: ops.RoleInput, TensorIndex: 1, BufferIndex: 1, Offset: 0, Size: weightBytes},
		{Role: ops.RoleOutput, TensorIndex: 2, BufferIndex: 2, Offset: 0, Size: operandBytes},
	}, nil
}

// TransactionBytes returns the raw precompiled instruction stream for the
// input shape, straight from the transaction store. The device copy held by
// the registry is not involved.
func (r *RMSNorm) TransactionBytes(inputs, outputs []tensor.Tensor, attrs map[string]any) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("rmsnorm needs the activation tensor to resolve a transaction: %w", ops.ErrShapeMismatch)
	}
	if r.store == nil {
		return nil, fmt.Errorf("engine has no transaction store: %w", ops.ErrConfiguration)
	}
	rows, cols, err := extractRowsCols(inputs[0])
	if err != nil {
		return nil, err
	}
	return r.store.Transaction(context.Background(), instrKey(r.prefix, rows, cols))
}

// SuperKernelParams returns the layer parameter blob for the given shapes.
// The rmsnorm kernels take no layer parameters.
func (r *RMSNorm) SuperKernelParams(inputs, outputs []tensor.Tensor, attrs map[string]any) ([]byte, error) {
	return nil, nil
}
