// Package pool runs inference requests on a fixed set of engine instances.
//
// Each instance is owned by one worker goroutine, so an engine never sees
// two calls at once. Requests wait in a bounded queue when every instance is
// busy.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/go-kokoro-tts/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("inference pool closed")

// Engine is one inference instance. Implementations need not be safe for
// concurrent use.
type Engine interface {
	Infer(ctx context.Context, tokens []int64, style []float32, speed float32) ([]float32, error)
	Close() error
}

// Factory builds instance i of total.
type Factory func(instance, total int) (Engine, error)

// Request is one chunk to synthesize.
type Request struct {
	Tokens []int64
	Style  []float32
	Speed  float32
}

type result struct {
	samples []float32
	err     error
}

type job struct {
	ctx  context.Context
	req  Request
	done chan result
}

type options struct {
	queueSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Pool.
type Option func(*options)

// WithQueueSize bounds the number of requests waiting for an instance
// (default: one per instance).
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithLogger sets the logger used for instance lifecycle and failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records queue depth, busy instances and call outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Pool dispatches requests to engine instances.
type Pool struct {
	engines []Engine
	jobs    chan job
	log     *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex // held for reading while sending on jobs
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// New builds n instances concurrently. All of them must succeed; on the
// first failure the instances built so far are closed and the error is
// returned.
func New(ctx context.Context, n int, factory Factory, optFns ...Option) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", n)
	}
	opts := options{queueSize: n, logger: slog.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.queueSize < 0 {
		opts.queueSize = 0
	}

	engines := make([]Engine, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := factory(i, n)
			if err != nil {
				return err
			}
			engines[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range engines {
			if e != nil {
				_ = e.Close()
			}
		}
		return nil, err
	}

	p := &Pool{
		engines: engines,
		jobs:    make(chan job, opts.queueSize),
		log:     opts.logger,
		metrics: opts.metrics,
		closed:  make(chan struct{}),
	}
	for i, e := range engines {
		p.wg.Add(1)
		go p.worker(i, e)
	}
	p.log.Info("inference pool started", "instances", n, "queue_size", opts.queueSize)
	return p, nil
}

// Size returns the number of instances.
func (p *Pool) Size() int {
	return len(p.engines)
}

func (p *Pool) worker(instance int, e Engine) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.metrics.QueueAdd(-1)
		if err := j.ctx.Err(); err != nil {
			j.done <- result{err: err}
			continue
		}

		p.metrics.BusyAdd(1)
		start := time.Now()
		// A started call runs to completion; the caller may stop waiting.
		samples, err := e.Infer(context.WithoutCancel(j.ctx), j.req.Tokens, j.req.Style, j.req.Speed)
		p.metrics.ObserveInference(instance, err, time.Since(start))
		p.metrics.BusyAdd(-1)
		if err != nil {
			p.log.Debug("inference failed", "instance", instance, "tokens", len(j.req.Tokens), "error", err)
		}
		j.done <- result{samples: samples, err: err}
	}
}

// Infer runs req on the next free instance and waits for its samples.
// It blocks while the queue is full. If ctx ends before an instance picks the
// request up, the request is dropped.
func (p *Pool) Infer(ctx context.Context, req Request) ([]float32, error) {
	j := job{ctx: ctx, req: req, done: make(chan result, 1)}

	if err := p.enqueue(ctx, j); err != nil {
		return nil, err
	}

	select {
	case r := <-j.done:
		return r.samples, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.jobs <- j:
		p.metrics.QueueAdd(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrClosed
	}
}

// ChunkError reports the failure of request Index in InferOrdered.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

type indexed struct {
	index   int
	samples []float32
}

// InferOrdered submits all reqs concurrently and calls emit with each
// result in request order, whatever order instances finish in. The first
// failure cancels the outstanding requests and is returned as a *ChunkError;
// emit errors are returned as is.
func (p *Pool) InferOrdered(ctx context.Context, reqs []Request, emit func(i int, samples []float32) error) error {
	if len(reqs) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan indexed, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			samples, err := p.Infer(gctx, req)
			if err != nil {
				return &ChunkError{Index: i, Err: err}
			}
			results <- indexed{index: i, samples: samples}
			return nil
		})
	}

	buf := newReorder[[]float32]()
	for received := 0; received < len(reqs); received++ {
		select {
		case r := <-results:
			buf.add(r.index, r.samples)
			if err := buf.drain(emit); err != nil {
				cancel()
				_ = g.Wait()
				return err
			}
		case <-gctx.Done():
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
	return g.Wait()
}

// Close stops accepting requests, lets the workers finish queued requests
// and closes every instance.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()

		var errs []error
		for i, e := range p.engines {
			if err := e.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close instance %d: %w", i, err))
			}
		}
		p.closeErr = errors.Join(errs...)
		p.log.Info("inference pool closed", "instances", len(p.engines))
	})
	return p.closeErr
}
