//go:build windows

package onnx

import (
	"context"
	"errors"
	"fmt"
)

// errNoPurego is returned on platforms where onnxruntime-purego cannot load
// the shared library.
var errNoPurego = errors.New("onnx runtime is not supported on windows builds")

type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
	Threads     ThreadPlan
}

// Runner is a placeholder so the pipeline compiles; every session fails to load.
type Runner struct {
	name string
}

func NewRunner(name, path string, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("session %q (%s): %w", name, path, errNoPurego)
}

func (r *Runner) Run(context.Context, map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, fmt.Errorf("run %q: %w", r.name, errNoPurego)
}

func (r *Runner) Close() {}

func (r *Runner) Name() string { return r.name }
