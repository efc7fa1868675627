package tensor

import "testing"

func TestDTypeSize(t *testing.T) {
	tests := []struct {
		dtype    DType
		expected int
	}{
		{BFloat16, 2},
		{Float16, 2},
		{Float32, 4},
		{Int8, 1},
	}

	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.expected {
			t.Errorf("%s: expected size %d, got %d", tt.dtype, tt.expected, got)
		}
	}
}

func TestDTypeString(t *testing.T) {
	if got := BFloat16.String(); got != "bfloat16" {
		t.Errorf("expected bfloat16, got %q", got)
	}
	if got := DType(99).String(); got != "DType(99)" {
		t.Errorf("expected DType(99), got %q", got)
	}
}

func TestZeros(t *testing.T) {
	tt := Zeros([]int{128, 4096}, BFloat16)
	if got := tt.NumElements(); got != 128*4096 {
		t.Errorf("expected %d elements, got %d", 128*4096, got)
	}
	if got := tt.NumBytes(); got != 128*4096*2 {
		t.Errorf("expected %d bytes, got %d", 128*4096*2, got)
	}
	if len(tt.Data) != tt.NumBytes() {
		t.Errorf("data length %d does not match NumBytes %d", len(tt.Data), tt.NumBytes())
	}
	if tt.Rank() != 2 {
		t.Errorf("expected rank 2, got %d", tt.Rank())
	}
}

func TestNewReferencesData(t *testing.T) {
	data := make([]byte, 8)
	tt := New(data, []int{4}, BFloat16)
	data[0] = 0xAB
	if tt.Data[0] != 0xAB {
		t.Error("New should reference the caller's data, not copy it")
	}
}

func TestEmptyShape(t *testing.T) {
	tt := Tensor{DType: BFloat16}
	if got := tt.NumElements(); got != 0 {
		t.Errorf("expected 0 elements for empty shape, got %d", got)
	}
	if got := tt.NumBytes(); got != 0 {
		t.Errorf("expected 0 bytes for empty shape, got %d", got)
	}
}
