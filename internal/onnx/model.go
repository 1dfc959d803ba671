package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/example/go-kokoro-tts/internal/tokenizer"
)

// ModelLoadError reports that an inference instance could not be created.
type ModelLoadError struct {
	Path     string
	Instance int
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s (instance %d): %v", e.Path, e.Instance, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InputNames are the graph input names of a Kokoro export.
type InputNames struct {
	Tokens string
	Style  string
	Speed  string
}

// DefaultInputNames match the Kokoro v1.0 ONNX export.
func DefaultInputNames() InputNames {
	return InputNames{Tokens: "input_ids", Style: "style", Speed: "speed"}
}

type graphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close()
}

// ModelConfig describes one Kokoro inference instance.
type ModelConfig struct {
	Path     string
	Runner   RunnerConfig
	Inputs   InputNames
	Instance int
	Total    int
	Backend  Backend
	Logger   *slog.Logger
}

// Model is one Kokoro inference instance. It is not safe for concurrent
// use; the pool gives each instance to one caller at a time.
type Model struct {
	runner   graphRunner
	inputs   InputNames
	instance int
	logger   *slog.Logger
}

// LoadModel creates a session for cfg.Path configured by cfg.Backend.
func LoadModel(cfg ModelConfig) (*Model, error) {
	if cfg.Backend == nil {
		cfg.Backend = CPUBackend{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rc := cfg.Runner
	rc.Threads = cfg.Backend.Plan(cfg.Total)

	start := time.Now()
	runner, err := NewRunner(fmt.Sprintf("kokoro-%02x", cfg.Instance), cfg.Path, rc)
	if err != nil {
		return nil, &ModelLoadError{Path: cfg.Path, Instance: cfg.Instance, Err: err}
	}

	cfg.Logger.Info("inference instance ready",
		"instance", cfg.Instance,
		"total", cfg.Total,
		"backend", cfg.Backend.Name(),
		"intra_op_threads", rc.Threads.IntraOpThreads,
		"providers", rc.Threads.Providers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return newModel(runner, cfg.Inputs, cfg.Instance, cfg.Logger), nil
}

func newModel(r graphRunner, inputs InputNames, instance int, logger *slog.Logger) *Model {
	def := DefaultInputNames()
	if inputs.Tokens == "" {
		inputs.Tokens = def.Tokens
	}
	if inputs.Style == "" {
		inputs.Style = def.Style
	}
	if inputs.Speed == "" {
		inputs.Speed = def.Speed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{runner: r, inputs: inputs, instance: instance, logger: logger}
}

// Infer synthesizes mono samples at 24 kHz for one chunk. The pad token is
// added before and after tokens.
func (m *Model) Infer(ctx context.Context, tokens []int64, style []float32, speed float32) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, errors.New("empty token sequence")
	}
	if len(style) == 0 {
		return nil, errors.New("empty style vector")
	}

	padded := make([]int64, 0, len(tokens)+2)
	padded = append(padded, tokenizer.PadID)
	padded = append(padded, tokens...)
	padded = append(padded, tokenizer.PadID)

	ids, err := NewTensor(padded, []int64{1, int64(len(padded))})
	if err != nil {
		return nil, fmt.Errorf("tokens tensor: %w", err)
	}
	styleT, err := NewTensor(style, []int64{1, int64(len(style))})
	if err != nil {
		return nil, fmt.Errorf("style tensor: %w", err)
	}
	speedT, err := NewTensor([]float32{speed}, []int64{1})
	if err != nil {
		return nil, fmt.Errorf("speed tensor: %w", err)
	}

	start := time.Now()
	outputs, err := m.runner.Run(ctx, map[string]*Tensor{
		m.inputs.Tokens: ids,
		m.inputs.Style:  styleT,
		m.inputs.Speed:  speedT,
	})
	if err != nil {
		return nil, err
	}

	samples, err := firstFloatOutput(outputs)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("chunk inferred",
		"instance", m.instance,
		"tokens", len(tokens),
		"samples", len(samples),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return samples, nil
}

// firstFloatOutput picks the float output with the lowest name so the
// choice is stable across runs.
func firstFloatOutput(outputs map[string]*Tensor) ([]float32, error) {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if t := outputs[name]; t != nil && t.DType() == DTypeFloat32 {
			return t.Float32s()
		}
	}
	return nil, fmt.Errorf("model returned no float output (got %v)", names)
}

// Instance returns the instance index.
func (m *Model) Instance() int {
	return m.instance
}

// Close releases the session.
func (m *Model) Close() error {
	m.runner.Close()
	return nil
}
