// Package bench provides benchmarking primitives for the kokorotts bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/bench/stageprof"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run (cold-start)
	Duration      time.Duration
	AudioDuration time.Duration
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// ComputeStats calculates min, max and mean over a slice of durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summarize computes Stats over runs, including the mean RTF.
func Summarize(runs []RunResult) Stats {
	durations := make([]time.Duration, len(runs))
	var rtf float64
	for i, r := range runs {
		durations[i] = r.Duration
		rtf += r.RTF
	}
	s := ComputeStats(durations)
	if len(runs) > 0 {
		s.MeanRTF = rtf / float64(len(runs))
	}
	return s
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// AudioDuration returns the playback length of n mono samples at the model
// sample rate.
func AudioDuration(n int) time.Duration {
	return time.Duration(audio.Duration(n) * float64(time.Second))
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// SynthFunc produces mono samples for one benchmark iteration.
type SynthFunc func(ctx context.Context) ([]float32, error)

// Options controls Run.
type Options struct {
	Runs int
	// Encode, when set, also times WAV encoding as its own stage.
	Encode *audio.Format
	// Timings collects per-stage durations; may be nil.
	Timings *stageprof.Timings
}

// Run calls synth opts.Runs times. The first run is marked cold.
func Run(ctx context.Context, synth SynthFunc, opts Options) ([]RunResult, error) {
	if opts.Runs < 1 {
		return nil, errors.New("runs must be >= 1")
	}

	results := make([]RunResult, 0, opts.Runs)
	for i := range opts.Runs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		var samples []float32
		err := opts.Timings.Do(ctx, "synthesize", func(ctx context.Context) error {
			var err error
			samples, err = synth(ctx)
			return err
		})
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}
		if opts.Encode != nil {
			err = opts.Timings.Do(ctx, "encode", func(context.Context) error {
				_, err := audio.EncodeWAV(audio.Interleave(samples, opts.Encode.Channels, 0), *opts.Encode)
				return err
			})
			if err != nil {
				return results, fmt.Errorf("run %d: encode: %w", i+1, err)
			}
		}
		elapsed := time.Since(start)

		audioDur := AudioDuration(len(samples))
		results = append(results, RunResult{
			Index:         i,
			Cold:          i == 0,
			Duration:      elapsed,
			AudioDuration: audioDur,
			RTF:           CalcRTF(elapsed, audioDur),
		})
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 48))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Milliseconds()),
			float64(r.AudioDuration.Milliseconds()),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 48))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (min)\n", "", "", float64(stats.Min.Milliseconds()), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8.3f  (mean)\n", "", "", float64(stats.Mean.Milliseconds()), "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (max)\n", "", "", float64(stats.Max.Milliseconds()), "", "")

	fmt.Fprint(w, sb.String())
}

// FormatStages writes the per-stage mean durations to w.
func FormatStages(stages []stageprof.Stage, w io.Writer) {
	if len(stages) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%-12s  %10s  %7s\n", "Stage", "Mean(ms)", "Share")
	for _, s := range stages {
		fmt.Fprintf(w, "%-12s  %10.1f  %6.1f%%\n", s.Name, float64(s.Mean.Microseconds())/1000, 100*s.Share)
	}
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs   []jsonRun   `json:"runs"`
	Stats  jsonStats   `json:"stats"`
	Stages []jsonStage `json:"stages,omitempty"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

type jsonStage struct {
	Name   string  `json:"name"`
	MeanMS float64 `json:"mean_ms"`
	Share  float64 `json:"share"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, stages []stageprof.Stage, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   float64(stats.Min.Milliseconds()),
			MeanMS:  float64(stats.Mean.Milliseconds()),
			MaxMS:   float64(stats.Max.Milliseconds()),
			MeanRTF: stats.MeanRTF,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Milliseconds()),
			AudioMS:    float64(r.AudioDuration.Milliseconds()),
			RTF:        r.RTF,
		}
	}
	for _, s := range stages {
		jr.Stages = append(jr.Stages, jsonStage{
			Name:   s.Name,
			MeanMS: float64(s.Mean.Microseconds()) / 1000,
			Share:  s.Share,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
