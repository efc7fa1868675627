// Package registry holds device-resident instruction streams keyed by shape.
// Population happens exactly once per operator prefix regardless of how many
// engine instances are constructed concurrently; lookups afterwards are
// cheap map reads.
package registry

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/axon-accel/go-npu/device"
	"github.com/axon-accel/go-npu/ops"
	"github.com/axon-accel/go-npu/txn"
)

// instrBufferSlot is the kernel argument group instruction buffers are
// allocated against.
const instrBufferSlot = 1

// Instruction is a precompiled instruction stream staged in a device buffer,
// plus its length in 32-bit words. Owned by the registry; borrowed by
// dispatch for the duration of one call.
type Instruction struct {
	buf   device.Buffer
	words int
}

// Buffer returns the device buffer holding the stream
func (i *Instruction) Buffer() device.Buffer { return i.buf }

// Words returns the stream length in 32-bit words
func (i *Instruction) Words() int { return i.words }

type setupGate struct {
	once sync.Once
	err  error
}

// Registry maps instruction keys to device-resident streams
type Registry struct {
	mutex   sync.RWMutex
	gates   map[string]*setupGate
	entries map[string]*Instruction
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		gates:   make(map[string]*setupGate),
		entries: make(map[string]*Instruction),
	}
}

// SetupOnce populates the registry for one operator prefix: for every key it
// fetches the transaction bytes from the store, stages them into a fresh
// device buffer, and records the handle. The population runs at most once
// per prefix; concurrent callers serialize through the gate and all observe
// the first caller's result, including its error.
func (r *Registry) SetupOnce(ctx context.Context, hw device.Context, store txn.Store, prefix string, keys []string) error {
	r.mutex.Lock()
	gate, ok := r.gates[prefix]
	if !ok {
		gate = &setupGate{}
		r.gates[prefix] = gate
	}
	r.mutex.Unlock()

	gate.once.Do(func() {
		gate.err = r.setup(ctx, hw, store, prefix, keys)
	})
	return gate.err
}

func (r *Registry) setup(ctx context.Context, hw device.Context, store txn.Store, prefix string, keys []string) error {
	log := klog.FromContext(ctx)

	for _, key := range keys {
		data, err := store.Transaction(ctx, key)
		if err != nil {
			return fmt.Errorf("fetching transaction %q: %w", key, err)
		}
		if len(data) == 0 || len(data)%4 != 0 {
			return fmt.Errorf("transaction %q: %d bytes is not a whole number of instruction words", key, len(data))
		}

		buf, err := hw.Device().NewBuffer(len(data), hw.GroupID(instrBufferSlot))
		if err != nil {
			return fmt.Errorf("allocating instruction buffer for %q: %w", key, err)
		}
		copy(buf.Map(), data)
		if err := buf.SyncToDevice(); err != nil {
			return fmt.Errorf("syncing instruction buffer for %q: %w", key, err)
		}

		r.mutex.Lock()
		r.entries[key] = &Instruction{buf: buf, words: len(data) / 4}
		r.mutex.Unlock()

		log.V(2).Info("registered instruction stream", "key", key, "bytes", len(data))
	}

	log.V(1).Info("instruction registry populated", "prefix", prefix, "entries", len(keys))
	return nil
}

// Lookup resolves a key to its instruction handle. The error wraps
// ops.ErrUnregisteredKey when the key was never registered.
func (r *Registry) Lookup(key string) (*Instruction, error) {
	r.mutex.RLock()
	instr, ok := r.entries[key]
	r.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, ops.ErrUnregisteredKey)
	}
	return instr, nil
}

// Len returns the number of registered entries
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

// Process-wide shared registry, constructed lazily under sync.Once. Engine
// instances for the same operator type all route setup through this so it
// runs once per process.
var (
	shared     *Registry
	sharedOnce sync.Once
)

// Shared returns the process-wide registry instance
func Shared() *Registry {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}
