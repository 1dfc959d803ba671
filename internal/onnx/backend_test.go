package onnx

import (
	"reflect"
	"testing"
)

func TestCPUBackend_Plan(t *testing.T) {
	tests := []struct {
		cpus, instances, want int
	}{
		{16, 2, 8},
		{16, 3, 5},
		{4, 4, 2},
		{2, 1, 2},
		{1, 1, 2},
		{8, 0, 8},
	}
	for _, tt := range tests {
		b := CPUBackend{NumCPU: func() int { return tt.cpus }}
		got := b.Plan(tt.instances)
		if got.IntraOpThreads != tt.want || len(got.Providers) != 0 {
			t.Errorf("cpus=%d instances=%d: plan %+v; want intra %d", tt.cpus, tt.instances, got, tt.want)
		}
	}
}

func TestAcceleratedBackend_Plan(t *testing.T) {
	got := AcceleratedBackend{}.Plan(4)
	if got.IntraOpThreads != 0 || !reflect.DeepEqual(got.Providers, []string{"CUDAExecutionProvider"}) {
		t.Fatalf("default plan = %+v", got)
	}

	custom := []string{"TensorrtExecutionProvider", "CUDAExecutionProvider"}
	got = AcceleratedBackend{Providers: custom}.Plan(1)
	if !reflect.DeepEqual(got.Providers, custom) {
		t.Fatalf("custom plan = %+v", got)
	}
	got.Providers[0] = "mutated"
	if custom[0] != "TensorrtExecutionProvider" {
		t.Fatal("plan shares the configured provider slice")
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "cpu", false},
		{"cpu", "cpu", false},
		{"cuda", "accelerated", false},
		{"accelerated", "accelerated", false},
		{"quantum", "", true},
	}
	for _, tt := range tests {
		b, err := NewBackend(tt.in, nil)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewBackend(%q) = nil error", tt.in)
			}
			continue
		}
		if err != nil || b.Name() != tt.want {
			t.Errorf("NewBackend(%q) = %v, %v; want %s", tt.in, b, err, tt.want)
		}
	}
}

func TestNewBackend_PassesProviders(t *testing.T) {
	b, err := NewBackend("accelerated", []string{"CoreMLExecutionProvider"})
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Plan(2).Providers; !reflect.DeepEqual(got, []string{"CoreMLExecutionProvider"}) {
		t.Fatalf("providers = %v", got)
	}

	cpu, err := NewBackend("cpu", []string{"CoreMLExecutionProvider"})
	if err != nil {
		t.Fatal(err)
	}
	if got := cpu.Plan(2).Providers; len(got) != 0 {
		t.Fatalf("cpu providers = %v", got)
	}
}
