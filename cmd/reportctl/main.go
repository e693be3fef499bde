// reportctl runs the ingestion pipeline from the command line, against the
// same GCP backends the deployed functions use. It is the operational escape
// hatch for re-ingesting documents and inspecting stored reports.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/carevault/reportflow/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Local convenience only; the deployed functions get real env vars.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded configuration from .env")
	}

	rootCmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Ingest clinical documents and list stored reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newIngestCmd(), newListCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Run the full ingestion pipeline on a local image or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := pipeline.NewService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			// Stage a copy so the pipeline's cleanup never touches the
			// caller's original file.
			stagedPath, err := pipeline.StageFile(args[0])
			if err != nil {
				return err
			}

			result, err := svc.Ingestor.Process(ctx, pipeline.Upload{Path: stagedPath})
			if err != nil {
				return err
			}
			return printJSON(result.Records)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := pipeline.NewService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			reports, err := svc.Ingestor.ListReports(ctx)
			if err != nil {
				return err
			}
			return printJSON(reports)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
