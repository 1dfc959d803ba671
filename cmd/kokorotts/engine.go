package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/metrics"
	"github.com/example/go-kokoro-tts/internal/model"
	"github.com/example/go-kokoro-tts/internal/onnx"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/pool"
	"github.com/example/go-kokoro-tts/internal/style"
	"github.com/example/go-kokoro-tts/internal/text"
	"github.com/example/go-kokoro-tts/internal/tokenizer"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// engineDeps are the collaborators that need the host environment. Tests
// replace them with fakes.
type engineDeps struct {
	phonemizer func(cfg config.PhonemizerConfig) (phonemize.Phonemizer, error)
	factory    func(cfg config.Config, logger *slog.Logger) (pool.Factory, error)
}

var deps = engineDeps{
	phonemizer: newEspeakPhonemizer,
	factory:    newONNXFactory,
}

func newEspeakPhonemizer(cfg config.PhonemizerConfig) (phonemize.Phonemizer, error) {
	espeak, err := phonemize.NewEspeak(cfg.Command)
	if err != nil {
		return nil, err
	}
	return phonemize.NewCached(espeak, cfg.CacheSize)
}

// newONNXFactory locates ONNX Runtime once and returns a factory that loads
// one Kokoro session per pool instance.
func newONNXFactory(cfg config.Config, logger *slog.Logger) (pool.Factory, error) {
	info, err := onnx.Bootstrap(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("onnx runtime: %w", err)
	}
	backend, err := onnx.NewBackend(cfg.Runtime.Backend, cfg.Runtime.Providers)
	if err != nil {
		return nil, err
	}
	logger.Info("onnx runtime detected", "library", info.LibraryPath, "version", info.Version, "backend", backend.Name())

	inputs := onnx.InputNames{
		Tokens: cfg.Runtime.TokensInput,
		Style:  cfg.Runtime.StyleInput,
		Speed:  cfg.Runtime.SpeedInput,
	}
	return func(instance, total int) (pool.Engine, error) {
		m, err := onnx.LoadModel(onnx.ModelConfig{
			Path: cfg.Paths.Model,
			Runner: onnx.RunnerConfig{
				LibraryPath: info.LibraryPath,
				APIVersion:  uint32(cfg.Runtime.APIVersion),
			},
			Inputs:   inputs,
			Instance: instance,
			Total:    total,
			Backend:  backend,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}, nil
}

// engine is a ready synthesis pipeline.
type engine struct {
	svc     *tts.Service
	pool    *pool.Pool
	styles  *style.Table
	metrics *metrics.Metrics
}

func (e *engine) Close() error {
	return e.pool.Close()
}

// ensureAssets makes sure the model and voices files exist, downloading them
// when auto download is enabled. Progress goes to progress. Only a missing
// model is fatal: without voices every style lookup fails later with
// style.ErrStyleDataMissing.
func ensureAssets(ctx context.Context, cfg config.Config, progress io.Writer, logger *slog.Logger) error {
	opts := model.DownloadOptions{Stdout: progress}
	if err := model.Ensure(ctx, model.File{Path: cfg.Paths.Model, URL: cfg.Paths.ModelURL}, cfg.Paths.AutoDownload, opts); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := model.Ensure(ctx, model.File{Path: cfg.Paths.Data, URL: cfg.Paths.DataURL}, cfg.Paths.AutoDownload, opts); err != nil {
		logger.Warn("voices data unavailable", "path", cfg.Paths.Data, "error", err)
	}
	return nil
}

// buildEngine assembles the pipeline with the given number of inference
// instances. Every instance must load or the whole build fails.
func buildEngine(ctx context.Context, cfg config.Config, instances int, progress io.Writer) (*engine, error) {
	logger := slog.Default()

	if err := ensureAssets(ctx, cfg, progress, logger); err != nil {
		return nil, err
	}
	styles := style.LoadOrMissing(cfg.Paths.Data, logger)

	ph, err := deps.phonemizer(cfg.Phonemizer)
	if err != nil {
		return nil, err
	}
	planner := text.NewPlanner(ph, tokenizer.Default(), cfg.TTS.MaxTokens)

	factory, err := deps.factory(cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	p, err := pool.New(ctx, instances, factory,
		pool.WithQueueSize(cfg.Server.QueueSize),
		pool.WithLogger(logger),
		pool.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	svc := tts.NewService(planner, styles, p, tts.Settings{
		Language:       cfg.TTS.Language,
		Style:          cfg.TTS.Style,
		Speed:          float32(cfg.TTS.Speed),
		InitialSilence: cfg.TTS.InitialSilence,
		Parallel:       cfg.TTS.ParallelChunks && instances > 1,
	}, logger)

	return &engine{svc: svc, pool: p, styles: styles, metrics: m}, nil
}

// buildCLIEngine builds a single-instance pipeline for the one-shot modes.
func buildCLIEngine(ctx context.Context, cfg config.Config, progress io.Writer) (*engine, error) {
	if cfg.Runtime.Instances > 1 {
		slog.Info("--instances only applies to the openai server; using 1 instance",
			"instances", cfg.Runtime.Instances)
	}
	return buildEngine(ctx, cfg, 1, progress)
}
