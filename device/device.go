// Package device defines the hardware-context collaborators the operator
// engines dispatch through: a device that allocates host-visible buffers, a
// kernel that executes precompiled instruction streams, and the directional
// synchronization model those buffers require. A simulated implementation
// lives alongside the interfaces for tests and offline runs.
package device

// Context supplies the device and kernel handles for one loaded accelerator
// image. All engine instances built for the same image share one Context.
type Context interface {
	Device() Device
	Kernel() Kernel
	// GroupID reports the memory bank group for a kernel argument slot,
	// consumed at buffer-allocation time.
	GroupID(slot int) int
}

// Device allocates device-visible buffers
type Device interface {
	NewBuffer(size int, groupID int) (Buffer, error)
}

// Buffer is a region of memory visible to both host and accelerator.
// Host-side writes land in the mapped region and reach the device only after
// SyncToDevice; device-side results become host-visible only after
// SyncFromDevice.
type Buffer interface {
	// Map returns the host-addressable view of the buffer
	Map() []byte
	SyncToDevice() error
	SyncFromDevice() error
	// Address returns the buffer's DDR base address
	Address() uint64
	Size() int
}

// Kernel submits one hardware invocation. The instruction buffer and its
// word count come from the instruction registry; the remaining args are
// device addresses already translated via AIEAddress.
type Kernel interface {
	Run(opcode uint32, instr Buffer, instrWords int, args ...uint64) (Run, error)
}

// Run is an in-flight hardware invocation
type Run interface {
	// Wait blocks until the invocation completes. There is no timeout; a
	// hung invocation blocks the caller.
	Wait() error
}

// ddrAIEAddrOffset is the fixed translation between a buffer's DDR address
// and the address the AIE array dereferences.
const ddrAIEAddrOffset uint64 = 0x8000_0000

// AIEAddress translates a buffer's DDR base address into the accelerator's
// address space. Every submission site funnels through this so the offset
// constant lives in exactly one place.
func AIEAddress(b Buffer) uint64 {
	return b.Address() + ddrAIEAddrOffset
}
