package main

import (
	"fmt"

	"github.com/example/go-kokoro-tts/internal/style"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/spf13/cobra"
)

func newVoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the styles in the voices data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			table, err := style.Load(cfg.Paths.Data)
			if err != nil {
				return err
			}
			for _, v := range tts.ListVoices(table) {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", v.ID, v.Positions); err != nil {
					return err
				}
			}
			return nil
		},
	}

	return cmd
}
