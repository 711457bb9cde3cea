package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/build-flow-labs/spof/internal/spof/config"
	"github.com/build-flow-labs/spof/internal/spof/pipeline"
	"github.com/build-flow-labs/spof/internal/spof/report"
)

var (
	analyzeMaxRepos   int
	analyzeWorkers    int
	analyzeOutputCSV  bool
	analyzeNoCache    bool
	analyzeClearCache bool
	analyzeJSON       bool
	analyzeNoProgress bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [org]",
	Short: "Score the dependencies of an organization's repositories",
	Long: `Selects the organization's most popular repositories, collects their
dependencies, and scores every distinct dependency on five axes:

  Internal Criticality  - How many of your repositories use it?
  Ecosystem Popularity  - How widely is it used and starred?
  Maintainer Risk       - How few people maintain it?
  Security Health       - Does it carry known advisories?
  Upstream Activity     - Is it still committed to and released?

The org argument overrides github.org from the configuration file.
Press Ctrl-C to stop early; dependencies scored so far are still reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeMaxRepos, "max-repos", 0, "Maximum number of repositories to analyze")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "Dependencies scored concurrently")
	analyzeCmd.Flags().BoolVar(&analyzeOutputCSV, "output-csv", false, "Also write a CSV export")
	analyzeCmd.Flags().BoolVar(&analyzeNoCache, "no-cache", false, "Disable the response cache")
	analyzeCmd.Flags().BoolVar(&analyzeClearCache, "clear-cache", false, "Clear the response cache before running")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the report as JSON instead of the summary")
	analyzeCmd.Flags().BoolVar(&analyzeNoProgress, "no-progress", false, "Hide progress bars")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	o := config.Overrides{
		MaxRepos: analyzeMaxRepos,
		Workers:  analyzeWorkers,
		NoCache:  analyzeNoCache,
	}
	if len(args) == 1 {
		o.Org = args[0]
	}
	cfg.Apply(o)
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := runOptions{ClearCache: analyzeClearCache, WriteCSV: analyzeOutputCSV}
	if !analyzeNoProgress && !analyzeJSON {
		opts.Progress = cmd.ErrOrStderr()
	}

	out, err := runAnalysis(cmd.Context(), cfg, opts, logger)
	if out == nil {
		return err
	}

	if analyzeJSON {
		if encErr := printJSON(cmd.OutOrStdout(), out.Report); encErr != nil {
			return encErr
		}
	} else {
		report.PrintSummary(cmd.OutOrStdout(), out.Report)
		if out.JSONPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", out.JSONPath)
		}
		if out.CSVPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "CSV:    %s\n", out.CSVPath)
		}
	}

	if errors.Is(err, pipeline.ErrInterrupted) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Analysis interrupted; partial results were saved.")
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
