package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowline/pkg/flowline/config"
	"github.com/randalmurphal/flowline/pkg/flowline/engine"
)

func newValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline definition without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := config.LoadDefinition(path)
			if err != nil {
				return err
			}
			// Building resolves every processor and source type.
			eng := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			defer eng.Dispose(context.Background())
			if err := eng.Build(def); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pipeline(s) ok\n", path, len(def.Pipelines))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "pipeline definition file (.yaml, .yml or .json)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
