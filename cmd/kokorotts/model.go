package main

import (
	"fmt"

	"github.com/example/go-kokoro-tts/internal/model"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model acquisition commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		force       bool
		modelSHA256 string
		dataSHA256  string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the Kokoro model and voices data files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			opts := model.DownloadOptions{Stdout: cmd.OutOrStdout(), Force: force}
			files := []model.File{
				{Path: cfg.Paths.Model, URL: cfg.Paths.ModelURL, SHA256: modelSHA256},
				{Path: cfg.Paths.Data, URL: cfg.Paths.DataURL, SHA256: dataSHA256},
			}
			for _, f := range files {
				if _, err := model.Download(cmd.Context(), f, opts); err != nil {
					return fmt.Errorf("model download failed: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Download even when a file with a matching checksum exists")
	cmd.Flags().StringVar(&modelSHA256, "model-sha256", "", "Expected SHA-256 of the model file")
	cmd.Flags().StringVar(&dataSHA256, "data-sha256", "", "Expected SHA-256 of the voices data file")

	return cmd
}
