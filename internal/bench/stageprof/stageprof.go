// Package stageprof times named pipeline stages and labels them for pprof.
package stageprof

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"sort"
	"sync"
	"time"
)

// Timings accumulates wall time per stage across runs.
type Timings struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	counts map[string]int
	order  []string
}

// NewTimings returns an empty accumulator.
func NewTimings() *Timings {
	return &Timings{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
	}
}

// Do runs fn under a pprof "stage" label and records its duration. A nil
// receiver only applies the label.
func (t *Timings) Do(ctx context.Context, stage string, fn func(context.Context) error) error {
	var err error
	start := time.Now()
	pprof.Do(ctx, pprof.Labels("stage", stage), func(ctx context.Context) {
		err = fn(ctx)
	})
	t.add(stage, time.Since(start))
	return err
}

func (t *Timings) add(stage string, d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.counts[stage]; !seen {
		t.order = append(t.order, stage)
	}
	t.totals[stage] += d
	t.counts[stage]++
}

// Stage is the mean time spent in one stage.
type Stage struct {
	Name  string
	Runs  int
	Mean  time.Duration
	Share float64
}

// Summary returns stages in first-seen order with their share of the
// summed means.
func (t *Timings) Summary() []Stage {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Stage, 0, len(t.order))
	var sum time.Duration
	for _, name := range t.order {
		mean := t.totals[name] / time.Duration(t.counts[name])
		out = append(out, Stage{Name: name, Runs: t.counts[name], Mean: mean})
		sum += mean
	}
	if sum > 0 {
		for i := range out {
			out[i].Share = float64(out[i].Mean) / float64(sum)
		}
	}
	return out
}

// Slowest returns the stage with the highest mean, or false when empty.
func (t *Timings) Slowest() (Stage, bool) {
	s := t.Summary()
	if len(s) == 0 {
		return Stage{}, false
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Mean > s[j].Mean })
	return s[0], true
}

// StartCPUProfile writes a CPU profile to path until the returned stop
// function is called. An empty path is a no-op.
func StartCPUProfile(path string) (stop func() error, err error) {
	if path == "" {
		return func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpuprofile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start cpuprofile: %w", err)
	}
	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}
