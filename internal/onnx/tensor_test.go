package onnx

import (
	"reflect"
	"strings"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("float32 ok", func(t *testing.T) {
		tt, err := NewTensor([]float32{1, 2, 3, 4}, []int64{2, 2})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if tt.DType() != DTypeFloat32 {
			t.Fatalf("expected dtype float32, got %s", tt.DType())
		}
		if !reflect.DeepEqual(tt.Shape(), []int64{2, 2}) {
			t.Fatalf("unexpected shape: %v", tt.Shape())
		}
		got, err := tt.Float32s()
		if err != nil {
			t.Fatalf("Float32s failed: %v", err)
		}
		if !reflect.DeepEqual(got, []float32{1, 2, 3, 4}) {
			t.Fatalf("unexpected data: %v", got)
		}
		if _, err := tt.Int64s(); err == nil {
			t.Fatal("Int64s on float tensor should fail")
		}
	})

	t.Run("int64 ok", func(t *testing.T) {
		tt, err := NewTensor([]int64{0, 50, 83, 0}, []int64{1, 4})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		got, err := tt.Int64s()
		if err != nil || !reflect.DeepEqual(got, []int64{0, 50, 83, 0}) {
			t.Fatalf("Int64s = %v, %v", got, err)
		}
		if tt.Len() != 4 {
			t.Fatalf("Len = %d", tt.Len())
		}
	})

	t.Run("scalar shape", func(t *testing.T) {
		if _, err := NewTensor([]float32{1}, nil); err != nil {
			t.Fatalf("scalar tensor: %v", err)
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := NewTensor([]int64{1, 2, 3}, []int64{2, 2})
		if err == nil {
			t.Fatal("expected shape mismatch error")
		}
		if !strings.Contains(err.Error(), "expects 4 elements, got 3") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("non-positive dim", func(t *testing.T) {
		if _, err := NewTensor([]float32{}, []int64{0}); err == nil {
			t.Fatal("expected error for zero dimension")
		}
	})
}

func TestTensor_CopiesData(t *testing.T) {
	src := []float32{1, 2}
	tt, err := NewTensor(src, []int64{2})
	if err != nil {
		t.Fatal(err)
	}
	src[0] = 99
	got, _ := tt.Float32s()
	got[1] = 42
	again, _ := tt.Float32s()
	if again[0] != 1 || again[1] != 2 {
		t.Fatalf("tensor data aliased: %v", again)
	}
}
