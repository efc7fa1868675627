package device

import (
	"fmt"
	"sync"
)

// SimContext is an in-process stand-in for a real hardware context. The
// simulated kernel executes a caller-supplied handler instead of real
// instruction streams, which is enough to exercise the full staging, submit,
// wait and retrieve path.
type SimContext struct {
	device *SimDevice
	kernel *SimKernel
}

// NewSimContext creates a simulated context with no kernel handler installed.
// Submissions complete immediately as no-ops until SetHandler is called.
func NewSimContext() *SimContext {
	d := &SimDevice{
		buffers:  make(map[uint64]*SimBuffer),
		nextAddr: 0x1000,
	}
	return &SimContext{
		device: d,
		kernel: &SimKernel{device: d},
	}
}

func (c *SimContext) Device() Device { return c.device }

func (c *SimContext) Kernel() Kernel { return c.kernel }

func (c *SimContext) GroupID(slot int) int { return slot }

// SetHandler installs the function the simulated kernel executes per
// submission
func (c *SimContext) SetHandler(h KernelHandler) {
	c.kernel.mutex.Lock()
	c.kernel.handler = h
	c.kernel.mutex.Unlock()
}

// Invocations returns a copy of every submission seen so far
func (c *SimContext) Invocations() []Invocation {
	c.kernel.mutex.Lock()
	defer c.kernel.mutex.Unlock()
	out := make([]Invocation, len(c.kernel.invocations))
	copy(out, c.kernel.invocations)
	return out
}

// SimDevice allocates SimBuffers and tracks them by base address so the
// simulated kernel can dereference submission args.
type SimDevice struct {
	mutex    sync.Mutex
	buffers  map[uint64]*SimBuffer
	nextAddr uint64
}

// NewBuffer allocates a simulated buffer. Addresses are assigned
// sequentially and never reused.
func (d *SimDevice) NewBuffer(size int, groupID int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", size)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	b := &SimBuffer{
		mapped: make([]byte, size),
		shadow: make([]byte, size),
		addr:   d.nextAddr,
	}
	d.buffers[b.addr] = b
	d.nextAddr += uint64(size)
	// Keep buffers page-aligned, as a real allocator would
	if rem := d.nextAddr % 0x1000; rem != 0 {
		d.nextAddr += 0x1000 - rem
	}
	return b, nil
}

// BufferAt resolves an accelerator-space address from a submission back to
// its buffer
func (d *SimDevice) BufferAt(aieAddr uint64) (*SimBuffer, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	b, ok := d.buffers[aieAddr-ddrAIEAddrOffset]
	return b, ok
}

// SimBuffer models a device buffer with an explicit host-mapped region and a
// device-side shadow. The two only converge on sync, so a missing sync shows
// up as stale data in tests rather than passing by accident.
type SimBuffer struct {
	mutex  sync.Mutex
	mapped []byte
	shadow []byte
	addr   uint64
}

func (b *SimBuffer) Map() []byte { return b.mapped }

func (b *SimBuffer) SyncToDevice() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	copy(b.shadow, b.mapped)
	return nil
}

func (b *SimBuffer) SyncFromDevice() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	copy(b.mapped, b.shadow)
	return nil
}

func (b *SimBuffer) Address() uint64 { return b.addr }

func (b *SimBuffer) Size() int { return len(b.mapped) }

// DeviceBytes returns the device-side shadow, for kernel handlers and test
// assertions
func (b *SimBuffer) DeviceBytes() []byte { return b.shadow }

// Invocation records one submission to the simulated kernel
type Invocation struct {
	Opcode     uint32
	Instr      []byte
	InstrWords int
	Args       []uint64
}

// KernelHandler is the device-side behavior of a simulated submission. It
// runs against buffer shadows, never mapped regions.
type KernelHandler func(dev *SimDevice, inv Invocation) error

// SimKernel records submissions and executes the installed handler on a
// separate goroutine so Wait has something real to block on.
type SimKernel struct {
	mutex       sync.Mutex
	device      *SimDevice
	handler     KernelHandler
	invocations []Invocation
}

func (k *SimKernel) Run(opcode uint32, instr Buffer, instrWords int, args ...uint64) (Run, error) {
	if instr == nil {
		return nil, fmt.Errorf("nil instruction buffer")
	}
	sb, ok := instr.(*SimBuffer)
	if !ok {
		return nil, fmt.Errorf("instruction buffer is %T, not a SimBuffer", instr)
	}

	inv := Invocation{
		Opcode:     opcode,
		Instr:      append([]byte(nil), sb.DeviceBytes()...),
		InstrWords: instrWords,
		Args:       append([]uint64(nil), args...),
	}

	k.mutex.Lock()
	k.invocations = append(k.invocations, inv)
	handler := k.handler
	k.mutex.Unlock()

	run := &simRun{done: make(chan struct{})}
	go func() {
		defer close(run.done)
		if handler != nil {
			run.err = handler(k.device, inv)
		}
	}()
	return run, nil
}

type simRun struct {
	done chan struct{}
	err  error
}

func (r *simRun) Wait() error {
	<-r.done
	return r.err
}

// EchoHandler returns a handler that copies the device bytes of the buffer at
// argument srcArg into the buffer at argument dstArg. Useful as a stand-in
// accelerator program when only data movement is under test.
func EchoHandler(srcArg, dstArg int) KernelHandler {
	return func(dev *SimDevice, inv Invocation) error {
		if srcArg >= len(inv.Args) || dstArg >= len(inv.Args) {
			return fmt.Errorf("echo handler: args out of range (have %d)", len(inv.Args))
		}
		src, ok := dev.BufferAt(inv.Args[srcArg])
		if !ok {
			return fmt.Errorf("echo handler: no buffer at address %#x", inv.Args[srcArg])
		}
		dst, ok := dev.BufferAt(inv.Args[dstArg])
		if !ok {
			return fmt.Errorf("echo handler: no buffer at address %#x", inv.Args[dstArg])
		}
		copy(dst.DeviceBytes(), src.DeviceBytes())
		return nil
	}
}
