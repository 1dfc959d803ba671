// Package tts turns text into speech samples: it plans chunks, resolves the
// style vector and dispatches each chunk to the inference pool.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-kokoro-tts/internal/pool"
	"github.com/example/go-kokoro-tts/internal/style"
	"github.com/example/go-kokoro-tts/internal/text"
	"github.com/example/go-kokoro-tts/internal/tokenizer"
)

// ChunkInferenceError reports an inference failure for one chunk. No audio
// of the request is returned.
type ChunkInferenceError struct {
	Index int
	Text  string
	Err   error
}

func (e *ChunkInferenceError) Error() string {
	return fmt.Sprintf("chunk %d %q: inference failed: %v", e.Index, e.Text, e.Err)
}

func (e *ChunkInferenceError) Unwrap() error { return e.Err }

// Dispatcher runs inference requests; *pool.Pool implements it.
type Dispatcher interface {
	Infer(ctx context.Context, req pool.Request) ([]float32, error)
	InferOrdered(ctx context.Context, reqs []pool.Request, emit func(i int, samples []float32) error) error
}

// Settings are the defaults applied to requests that leave a field empty.
type Settings struct {
	Language       string
	Style          string
	Speed          float32
	InitialSilence int
	// Parallel fans the chunks of one request out across instances.
	Parallel bool
}

// Request is one text to synthesize. Zero fields take the Settings value.
type Request struct {
	Text     string
	Style    string
	Language string
	Speed    float32
}

// PCMChunk is one chunk of streamed samples.
type PCMChunk struct {
	ChunkIndex int
	Samples    []float32
	Final      bool
}

// Service turns text into audio through the planner, style table and
// inference dispatcher. It is safe for concurrent use.
type Service struct {
	planner    *text.Planner
	styles     *style.Table
	dispatcher Dispatcher
	settings   Settings
	log        *slog.Logger
}

// NewService wires the pipeline stages. A nil logger uses slog.Default.
func NewService(planner *text.Planner, styles *style.Table, d Dispatcher, settings Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Speed <= 0 {
		settings.Speed = 1
	}
	return &Service{
		planner:    planner,
		styles:     styles,
		dispatcher: d,
		settings:   settings,
		log:        logger,
	}
}

// Settings returns the service defaults.
func (s *Service) Settings() Settings {
	return s.settings
}

// ListVoices returns the styles available for resolution.
func (s *Service) ListVoices() []Voice {
	return ListVoices(s.styles)
}

// plan is a prepared request: resolved style, chunks and pool requests.
type plan struct {
	chunks []text.Chunk
	reqs   []pool.Request
}

func (s *Service) prepare(ctx context.Context, req Request) (plan, error) {
	spec := req.Style
	if spec == "" {
		spec = s.settings.Style
	}
	lang := req.Language
	if lang == "" {
		lang = s.settings.Language
	}
	speed := req.Speed
	if speed <= 0 {
		speed = s.settings.Speed
	}

	// Style errors abort before any phonemizer or engine call.
	vec, err := s.styles.Resolve(spec)
	if err != nil {
		return plan{}, err
	}

	input, err := text.Normalize(req.Text)
	if errors.Is(err, text.ErrEmptyText) {
		return plan{}, nil
	}
	if err != nil {
		return plan{}, err
	}

	chunks, err := s.planner.Plan(ctx, input, lang)
	if err != nil {
		return plan{}, err
	}

	p := plan{chunks: make([]text.Chunk, 0, len(chunks)), reqs: make([]pool.Request, 0, len(chunks))}
	for _, c := range chunks {
		if len(c.Tokens) == 0 {
			s.log.Debug("skipping chunk without known symbols", "text", c.Text)
			continue
		}
		if c.Oversized(s.planner.MaxTokens()) {
			s.log.Warn("chunk exceeds token budget; words are never split",
				"text", c.Text,
				"tokens", len(c.Tokens),
				"max_tokens", s.planner.MaxTokens(),
			)
		}
		p.chunks = append(p.chunks, c)
		p.reqs = append(p.reqs, pool.Request{
			Tokens: withSilence(c.Tokens, s.settings.InitialSilence),
			Style:  vec,
			Speed:  speed,
		})
	}
	return p, nil
}

func withSilence(tokens []int64, n int) []int64 {
	if n <= 0 {
		return tokens
	}
	out := make([]int64, 0, n+len(tokens))
	for range n {
		out = append(out, tokenizer.SilenceID)
	}
	return append(out, tokens...)
}

// Synthesize returns the mono samples for req.Text, chunk outputs joined in
// order. Any chunk failure fails the whole request. Empty text yields no
// samples and no error.
func (s *Service) Synthesize(ctx context.Context, req Request) ([]float32, error) {
	start := time.Now()
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(p.reqs) == 0 {
		return nil, nil
	}

	var total int
	parts := make([][]float32, len(p.reqs))
	err = s.run(ctx, p, func(i int, samples []float32) error {
		parts[i] = samples
		total += len(samples)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]float32, 0, total)
	for _, part := range parts {
		out = append(out, part...)
	}
	s.log.Info("synthesis complete",
		"chunks", len(p.reqs),
		"samples", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// SynthesizeStream sends each chunk's samples to out in order as soon as it
// and every earlier chunk are ready, then closes out. The last chunk has
// Final set. Chunks already sent stay delivered if a later chunk fails.
func (s *Service) SynthesizeStream(ctx context.Context, req Request, out chan<- PCMChunk) error {
	defer close(out)

	p, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}

	last := len(p.reqs) - 1
	return s.run(ctx, p, func(i int, samples []float32) error {
		select {
		case out <- PCMChunk{ChunkIndex: i, Samples: samples, Final: i == last}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// run dispatches every request of p and passes results to emit in order.
func (s *Service) run(ctx context.Context, p plan, emit func(i int, samples []float32) error) error {
	if s.settings.Parallel && len(p.reqs) > 1 {
		err := s.dispatcher.InferOrdered(ctx, p.reqs, emit)
		var ce *pool.ChunkError
		if errors.As(err, &ce) {
			return &ChunkInferenceError{Index: ce.Index, Text: p.chunks[ce.Index].Text, Err: ce.Err}
		}
		return err
	}

	for i, r := range p.reqs {
		samples, err := s.dispatcher.Infer(ctx, r)
		if err != nil {
			return &ChunkInferenceError{Index: i, Text: p.chunks[i].Text, Err: err}
		}
		if err := emit(i, samples); err != nil {
			return err
		}
	}
	return nil
}
