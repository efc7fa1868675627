package ops

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// Profile is the per-call timing record an operator engine fills in during
// Execute. It is reset at the start of each call and emitted once at the
// end; the fields are diagnostics for offline profiling, never inputs to
// control decisions.
type Profile struct {
	// InstanceID identifies the engine instance that served the call
	InstanceID uint64

	// Batch, Rows, Cols are the dims of the call that produced the record
	Batch int
	Rows  int
	Cols  int

	// Total covers the whole Execute call
	Total time.Duration

	// Runs counts hardware invocations in the call; RunTime is their
	// summed submit-to-completion duration
	Runs    int
	RunTime time.Duration

	// Per-stage host copy and directional sync durations
	InputCopy  time.Duration
	InputSync  time.Duration
	WeightCopy time.Duration
	WeightSync time.Duration
	OutputSync time.Duration
	OutputCopy time.Duration
}

// AvgRunTime returns the mean duration of one hardware invocation
func (p *Profile) AvgRunTime() time.Duration {
	if p.Runs == 0 {
		return 0
	}
	return p.RunTime / time.Duration(p.Runs)
}

// LogValues returns the record as klog key/value pairs
func (p *Profile) LogValues() []any {
	return []any{
		"id", p.InstanceID,
		"batch", p.Batch,
		"rows", p.Rows,
		"cols", p.Cols,
		"total", p.Total,
		"runs", p.Runs,
		"runTime", p.RunTime,
		"inputCopy", p.InputCopy,
		"inputSync", p.InputSync,
		"weightCopy", p.WeightCopy,
		"weightSync", p.WeightSync,
		"outputSync", p.OutputSync,
		"outputCopy", p.OutputCopy,
		"avgRunTime", p.AvgRunTime(),
	}
}

// Proto converts the record to a structpb.Struct for serialized export.
// Durations are written as nanosecond counts.
func (p *Profile) Proto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":             float64(p.InstanceID),
		"batch":          float64(p.Batch),
		"rows":           float64(p.Rows),
		"cols":           float64(p.Cols),
		"total_ns":       float64(p.Total.Nanoseconds()),
		"runs":           float64(p.Runs),
		"run_ns":         float64(p.RunTime.Nanoseconds()),
		"input_copy_ns":  float64(p.InputCopy.Nanoseconds()),
		"input_sync_ns":  float64(p.InputSync.Nanoseconds()),
		"weight_copy_ns": float64(p.WeightCopy.Nanoseconds()),
		"weight_sync_ns": float64(p.WeightSync.Nanoseconds()),
		"output_sync_ns": float64(p.OutputSync.Nanoseconds()),
		"output_copy_ns": float64(p.OutputCopy.Nanoseconds()),
		"avg_run_ns":     float64(p.AvgRunTime().Nanoseconds()),
	})
}

// ProfileWriter appends profile records to a stream as length-delimited
// protobuf messages, the format offline analysis tooling reads back with
// ReadProfiles. Safe for concurrent use.
type ProfileWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

// NewProfileWriter creates a writer appending to w
func NewProfileWriter(w io.Writer) *ProfileWriter {
	return &ProfileWriter{w: w}
}

// Write appends one record
func (pw *ProfileWriter) Write(p *Profile) error {
	msg, err := p.Proto()
	if err != nil {
		return fmt.Errorf("converting profile record: %v", err)
	}
	pw.mutex.Lock()
	defer pw.mutex.Unlock()
	if _, err := protodelim.MarshalTo(pw.w, msg); err != nil {
		return fmt.Errorf("writing profile record: %v", err)
	}
	return nil
}

// ReadProfiles decodes every record in a stream written by ProfileWriter
func ReadProfiles(r io.Reader) ([]*structpb.Struct, error) {
	br := bufio.NewReader(r)
	var records []*structpb.Struct
	for {
		msg := &structpb.Struct{}
		if err := protodelim.UnmarshalFrom(br, msg); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("reading profile record %d: %v", len(records), err)
		}
		records = append(records, msg)
	}
}
