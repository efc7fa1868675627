// rmsnorm-sim runs the rmsnorm engine end to end against the simulated
// device: it fabricates a transaction per catalog shape, installs an echo
// kernel, executes every shape, and checks the bytes that come back.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/axon-accel/go-npu/device"
	"github.com/axon-accel/go-npu/ops"
	"github.com/axon-accel/go-npu/ops/rmsnorm"
	"github.com/axon-accel/go-npu/tensor"
	"github.com/axon-accel/go-npu/txn"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	klog.InitFlags(nil)
	profilePath := flag.String("profile", "", "append binary profile records to this file")
	flag.Parse()

	log := klog.FromContext(ctx)
	dtype := tensor.BFloat16

	// Fabricate one transaction blob per catalog shape. Real blobs come
	// from the kernel build pipeline; the sim kernel never decodes them.
	store := txn.MapStore{}
	shapes := rmsnorm.SupportedShapes(dtype)
	for _, s := range shapes {
		key, err := rmsnorm.TransactionKey(dtype, s.Rows, s.Cols)
		if err != nil {
			return err
		}
		blob := make([]byte, 64)
		binary.LittleEndian.PutUint32(blob, uint32(s.Rows))
		binary.LittleEndian.PutUint32(blob[4:], uint32(s.Cols))
		store[key] = blob
	}

	hw := device.NewSimContext()
	hw.SetHandler(device.EchoHandler(0, 2))

	engine, err := rmsnorm.New(ctx, dtype, hw, store)
	if err != nil {
		return fmt.Errorf("constructing rmsnorm engine: %w", err)
	}
	engine.Debug(true)

	if *profilePath != "" {
		f, err := os.OpenFile(*profilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening profile file: %w", err)
		}
		defer f.Close()
		engine.SetProfileWriter(ops.NewProfileWriter(f))
	}

	for _, s := range shapes {
		activation := tensor.Zeros([]int{s.Rows, s.Cols}, dtype)
		for i := range activation.Data {
			activation.Data[i] = byte(i)
		}
		weights := tensor.Zeros([]int{s.Cols}, dtype)
		result := tensor.Zeros([]int{s.Rows, s.Cols}, dtype)

		if err := engine.Execute([]tensor.Tensor{activation, weights}, []tensor.Tensor{result}); err != nil {
			return fmt.Errorf("executing shape %dx%d: %w", s.Rows, s.Cols, err)
		}
		if !bytes.Equal(result.Data, activation.Data) {
			return fmt.Errorf("shape %dx%d: echoed bytes do not match input", s.Rows, s.Cols)
		}
		log.Info("shape ok", "rows", s.Rows, "cols", s.Cols, "total", engine.LastProfile().Total)
	}

	log.Info("all catalog shapes executed", "shapes", len(shapes))
	return nil
}
