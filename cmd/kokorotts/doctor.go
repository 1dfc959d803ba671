package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/doctor"
	"github.com/example/go-kokoro-tts/internal/onnx"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/style"
	"github.com/spf13/cobra"
)

const probeTimeout = 10 * time.Second

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "backend: %s\n", cfg.Runtime.Backend)

			result := doctor.Run(doctorConfig(cmd.Context(), cfg), out)
			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")
			return nil
		},
	}

	return cmd
}

func doctorConfig(ctx context.Context, cfg config.Config) doctor.Config {
	return doctor.Config{
		EspeakVersion: func() (string, error) {
			e, err := phonemize.NewEspeak(cfg.Phonemizer.Command)
			if err != nil {
				return "", err
			}
			ctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			return e.Version(ctx)
		},
		Runtime: func() (string, string, error) {
			info, err := onnx.DetectRuntime(cfg.Runtime)
			return info.LibraryPath, info.Version, err
		},
		MinORTMinor: cfg.Runtime.APIVersion,
		ModelPath:   cfg.Paths.Model,
		VoicesPath:  cfg.Paths.Data,
		LoadVoices: func(path string) (int, error) {
			t, err := style.Load(path)
			if err != nil {
				return 0, err
			}
			return t.Len(), nil
		},
	}
}
