package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/server"
	"github.com/spf13/cobra"
)

func newOpenAICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "openai",
		Aliases: []string{"oai", "serve"},
		Short:   "Run the OpenAI-compatible HTTP server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.Runtime.Backend)
			if err != nil {
				return err
			}
			if backend == config.BackendCPU && cfg.Runtime.Instances > 1 {
				slog.Warn("multiple inference instances on CPU may contend for memory bandwidth; consider --instances 1",
					"instances", cfg.Runtime.Instances)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx, cfg, cfg.Runtime.Instances, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()

			return serve(ctx, cfg, eng)
		},
	}

	config.RegisterServerFlags(cmd.Flags(), config.DefaultConfig())

	return cmd
}

func serve(ctx context.Context, cfg config.Config, eng *engine) error {
	srv := server.New(cfg, eng.svc, eng.metrics, slog.Default()).
		WithShutdownTimeout(cfg.Server.ShutdownTimeout)
	slog.Info("starting OpenAI-compatible HTTP server",
		"addr", cfg.Server.Addr(),
		"instances", eng.pool.Size(),
		"voices", eng.styles.Len(),
	)
	return srv.Start(ctx)
}
