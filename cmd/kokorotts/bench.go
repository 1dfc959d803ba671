package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/go-kokoro-tts/internal/bench"
	"github.com/example/go-kokoro-tts/internal/bench/stageprof"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		voice        string
		runs         int
		warmup       int
		format       string
		rtfThreshold float64
		cpuprofile   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}
			f, _, err := outputFormat(cfg)
			if err != nil {
				return err
			}

			eng, err := buildCLIEngine(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			req := tts.Request{Text: text, Style: voice}
			synth := func(ctx context.Context) ([]float32, error) {
				return eng.svc.Synthesize(ctx, req)
			}
			for i := range warmup {
				if _, err := synth(cmd.Context()); err != nil {
					return fmt.Errorf("warmup run %d failed: %w", i+1, err)
				}
			}

			stop, err := stageprof.StartCPUProfile(cpuprofile)
			if err != nil {
				return err
			}
			timings := stageprof.NewTimings()
			results, err := bench.Run(cmd.Context(), synth, bench.Options{Runs: runs, Encode: &f, Timings: timings})
			if stopErr := stop(); stopErr != nil && err == nil {
				err = stopErr
			}
			if err != nil {
				return err
			}

			stats := bench.Summarize(results)
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, timings.Summary(), out); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, out)
				bench.FormatStages(timings.Summary(), out)
			}

			return bench.CheckRTFThreshold(stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", defaultText, "Text to synthesize for each run")
	cmd.Flags().StringVar(&voice, "voice", "", "Style name or blend (overrides --style)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().IntVar(&warmup, "warmup", 0, "Untimed runs before measuring")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile of the measured runs to this file")

	return cmd
}
