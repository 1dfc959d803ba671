package onnx

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/example/go-kokoro-tts/internal/config"
)

// minThreadsPerInstance keeps intra-op parallelism when many instances share
// the host.
const minThreadsPerInstance = 2

// DefaultProviders are the execution providers of the accelerated backend
// when none are configured.
var DefaultProviders = []string{"CUDAExecutionProvider"}

// ThreadPlan is the ORT session configuration of one instance. Zero values
// leave the runtime defaults in place.
type ThreadPlan struct {
	IntraOpThreads int
	// Providers lists execution providers in order of preference.
	Providers []string
}

// Backend configures sessions for an execution path.
type Backend interface {
	Name() string
	Plan(totalInstances int) ThreadPlan
}

// CPUBackend splits the host's threads evenly across instances, truncating
// any remainder, with at least two threads per instance.
type CPUBackend struct {
	// NumCPU overrides runtime.NumCPU.
	NumCPU func() int
}

func (CPUBackend) Name() string { return config.BackendCPU }

func (b CPUBackend) Plan(totalInstances int) ThreadPlan {
	cpus := runtime.NumCPU()
	if b.NumCPU != nil {
		cpus = b.NumCPU()
	}
	if totalInstances < 1 {
		totalInstances = 1
	}
	return ThreadPlan{IntraOpThreads: max(cpus/totalInstances, minThreadsPerInstance)}
}

// AcceleratedBackend requests hardware execution providers and leaves
// threading to the runtime.
type AcceleratedBackend struct {
	// Providers overrides DefaultProviders.
	Providers []string
}

func (AcceleratedBackend) Name() string { return config.BackendAccelerated }

func (b AcceleratedBackend) Plan(int) ThreadPlan {
	providers := b.Providers
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	return ThreadPlan{Providers: slices.Clone(providers)}
}

// NewBackend returns the backend named by a config value. providers applies
// to the accelerated backend only.
func NewBackend(name string, providers []string) (Backend, error) {
	normalized, err := config.NormalizeBackend(name)
	if err != nil {
		return nil, err
	}
	switch normalized {
	case config.BackendAccelerated:
		return AcceleratedBackend{Providers: providers}, nil
	case config.BackendCPU:
		return CPUBackend{}, nil
	}
	return nil, fmt.Errorf("backend %q not implemented", normalized)
}
