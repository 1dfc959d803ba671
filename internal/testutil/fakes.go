package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/go-kokoro-tts/internal/pool"
)

// InferCall records one call to EchoEngine.Infer.
type InferCall struct {
	Tokens []int64
	Style  []float32
	Speed  float32
}

// EchoEngine is a pool.Engine that returns one sample per token, equal to
// the token ID, so tests can tell which chunk produced which audio.
type EchoEngine struct {
	// Fail, when set, may return an error for a call.
	Fail func(tokens []int64) error
	// Delay, when set, is slept before answering.
	Delay func(tokens []int64) time.Duration

	mu     sync.Mutex
	calls  []InferCall
	closed atomic.Bool
}

// Infer implements pool.Engine.
func (e *EchoEngine) Infer(_ context.Context, tokens []int64, style []float32, speed float32) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, InferCall{
		Tokens: append([]int64(nil), tokens...),
		Style:  append([]float32(nil), style...),
		Speed:  speed,
	})
	e.mu.Unlock()

	if e.Delay != nil {
		time.Sleep(e.Delay(tokens))
	}
	if e.Fail != nil {
		if err := e.Fail(tokens); err != nil {
			return nil, err
		}
	}
	out := make([]float32, len(tokens))
	for i, id := range tokens {
		out[i] = float32(id)
	}
	return out, nil
}

// Close implements pool.Engine.
func (e *EchoEngine) Close() error {
	e.closed.Store(true)
	return nil
}

// Calls returns a copy of the recorded calls.
func (e *EchoEngine) Calls() []InferCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]InferCall(nil), e.calls...)
}

// Closed reports whether Close was called.
func (e *EchoEngine) Closed() bool {
	return e.closed.Load()
}

// NewEchoPool starts a pool of n EchoEngines sharing e's behaviour and
// recording into e. The pool is closed when the test ends.
func NewEchoPool(tb testing.TB, n int, e *EchoEngine, opts ...pool.Option) *pool.Pool {
	tb.Helper()

	p, err := pool.New(context.Background(), n, func(int, int) (pool.Engine, error) {
		return shared{e}, nil
	}, opts...)
	if err != nil {
		tb.Fatalf("start echo pool: %v", err)
	}
	tb.Cleanup(func() { _ = p.Close() })
	return p
}

// shared lets several pool workers record into one EchoEngine; Close is
// left to the test.
type shared struct{ *EchoEngine }

func (shared) Close() error { return nil }

// Phonemizer returns its input unchanged and counts calls. Languages it
// has been called with are recorded.
type Phonemizer struct {
	// Err, when set, is returned by every call.
	Err error

	calls atomic.Int32
	mu    sync.Mutex
	langs []string
}

// Phonemize implements phonemize.Phonemizer.
func (p *Phonemizer) Phonemize(_ context.Context, text, lang string) (string, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.langs = append(p.langs, lang)
	p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	return text, nil
}

// Calls returns how many times Phonemize ran.
func (p *Phonemizer) Calls() int {
	return int(p.calls.Load())
}

// Langs returns the languages passed to Phonemize.
func (p *Phonemizer) Langs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.langs...)
}
