package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/build-flow-labs/spof/internal/spof/pipeline"
	"github.com/build-flow-labs/spof/internal/spof/server"
)

var (
	serveAddr     string
	serveSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve saved reports over a JSON API",
	Long: `Serves the reports in the configured output directory:

  GET /healthz
  GET /api/reports?org=ORG
  GET /api/reports/{id}
  GET /api/reports/{id}/dependencies?ecosystem=npm&min_score=60

With --schedule (a cron spec such as "@daily" or "0 3 * * *") the analysis
is re-run on that schedule and new reports appear in the listing.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "Cron schedule for re-running the analysis")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveSchedule == "")
	if err != nil {
		return err
	}

	srv := server.New(cfg.Output.Directory, logger)

	if serveSchedule != "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
		err := srv.Schedule(serveSchedule, func(ctx context.Context) error {
			_, err := runAnalysis(ctx, cfg, runOptions{}, logger)
			if errors.Is(err, pipeline.ErrInterrupted) {
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	return srv.Run(cmd.Context(), serveAddr)
}
