package txn

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMapStore(t *testing.T) {
	ctx := context.Background()
	store := MapStore{
		"mladfrmsnorm_rmsnorm_a16_128_4096": {1, 2, 3, 4},
	}

	data, err := store.Transaction(ctx, "mladfrmsnorm_rmsnorm_a16_128_4096")
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Errorf("expected 1 2 3 4, got %v", data)
	}

	// Callers get an independent copy
	data[0] = 99
	again, _ := store.Transaction(ctx, "mladfrmsnorm_rmsnorm_a16_128_4096")
	if again[0] != 1 {
		t.Error("Transaction should return a copy, not the backing slice")
	}
}

func TestMapStoreMissing(t *testing.T) {
	store := MapStore{}
	_, err := store.Transaction(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDirStore(t *testing.T) {
	dir := t.TempDir()
	want := []byte{0xCA, 0xFE, 0xF0, 0x0D}
	if err := os.WriteFile(filepath.Join(dir, "mladfrmsnorm_rmsnorm_a16_512_4096.bin"), want, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	store := &DirStore{Dir: dir}
	data, err := store.Transaction(context.Background(), "mladfrmsnorm_rmsnorm_a16_512_4096")
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("expected %v, got %v", want, data)
	}
}

func TestDirStoreMissing(t *testing.T) {
	store := &DirStore{Dir: t.TempDir()}
	_, err := store.Transaction(context.Background(), "missing_key")
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
