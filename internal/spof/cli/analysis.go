package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/build-flow-labs/spof/internal/spof/cache"
	"github.com/build-flow-labs/spof/internal/spof/config"
	"github.com/build-flow-labs/spof/internal/spof/depsdev"
	"github.com/build-flow-labs/spof/internal/spof/github"
	"github.com/build-flow-labs/spof/internal/spof/pipeline"
	"github.com/build-flow-labs/spof/internal/spof/report"
	"github.com/build-flow-labs/spof/internal/spof/score"
	"github.com/build-flow-labs/spof/sbom"
)

// responseCache is the method set shared by the cache consumers.
type responseCache interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// runOptions tune one analysis beyond the configuration file.
type runOptions struct {
	ClearCache bool
	WriteCSV   bool
	Progress   io.Writer
}

// outcome is a finished (possibly partial) analysis.
type outcome struct {
	Report   *report.Report
	JSONPath string
	CSVPath  string
}

// openResponseCache opens the configured cache. A cache held by another
// process (a scheduled run, say) is skipped with a warning; the analysis then
// fetches everything afresh.
func openResponseCache(cfg *config.Config, clear bool, log *slog.Logger) (responseCache, func(), error) {
	noop := func() {}
	if !cfg.Cache.Enabled {
		return nil, noop, nil
	}
	c, err := cache.Open(cfg.Cache.Directory, cfg.Cache.TTL, cache.WithLogger(log))
	if errors.Is(err, cache.ErrLocked) {
		log.Warn("continuing without cache", "error", err)
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}
	closeCache := func() {
		if err := c.Close(); err != nil {
			log.Warn("closing cache", "error", err)
		}
	}
	if clear {
		n, err := c.Clear()
		if err != nil {
			closeCache()
			return nil, noop, err
		}
		log.Info("cache cleared", "entries", n)
	}
	return c, closeCache, nil
}

// runAnalysis wires the collaborators from a validated configuration, runs
// the pipeline and writes the report files. An interrupted run still writes
// its partial report and returns pipeline.ErrInterrupted.
func runAnalysis(ctx context.Context, cfg *config.Config, opts runOptions, log *slog.Logger) (*outcome, error) {
	rc, closeCache, err := openResponseCache(cfg, opts.ClearCache, log)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	ghOpts := []github.Option{github.WithCache(rc), github.WithLogger(log)}
	var gh *github.Client
	if cfg.GitHub.BaseURL != "" {
		gh, err = github.NewClientWithBase(ctx, cfg.GitHub.Token, cfg.GitHub.BaseURL, ghOpts...)
		if err != nil {
			return nil, err
		}
	} else {
		gh = github.NewClient(ctx, cfg.GitHub.Token, ghOpts...)
	}
	if _, err := gh.RateLimit(ctx); err != nil {
		log.Warn("could not check GitHub rate limit", "error", err)
	}

	scorer, err := score.NewScorer(cfg.Scoring.Weights, nil)
	if err != nil {
		return nil, err
	}
	norm, err := score.NormalizerFor(cfg.Scoring.Normalization)
	if err != nil {
		return nil, err
	}

	p := &pipeline.Pipeline{
		Repos:         gh,
		Scorer:        scorer,
		Normalizer:    norm,
		Logger:        log,
		Workers:       cfg.Concurrency.Workers,
		ForgeLimit:    cfg.Concurrency.GitHub,
		RegistryLimit: cfg.Concurrency.DepsDev,
		Progress:      opts.Progress,
	}
	switch cfg.Syft.Mode {
	case config.ModeManifest:
		p.SBOM = pipeline.ManifestSource{Fetcher: gh}
	default:
		format, err := sbom.ParseFormat(cfg.Syft.Format)
		if err != nil {
			return nil, err
		}
		p.SBOM = pipeline.SyftSource{Generator: sbom.NewGenerator(cfg.Syft.Path, format, rc, log)}
	}
	if cfg.SourceEnabled(config.SourceGitHub) {
		p.Forge = gh
	}
	if cfg.SourceEnabled(config.SourceDepsDev) {
		p.Registry = depsdev.NewClient(rc, log)
	}

	res, runErr := p.Run(ctx, cfg.GitHub.Org, cfg.GitHub.MaxRepos)
	if runErr != nil && !errors.Is(runErr, pipeline.ErrInterrupted) {
		return nil, fmt.Errorf("analysis failed: %w", runErr)
	}

	repos := make([]string, len(res.Repos))
	for i, r := range res.Repos {
		repos[i] = r.FullName
	}
	rep := report.Build(report.Input{
		Organization:  cfg.GitHub.Org,
		AnalyzedAt:    res.StartedAt,
		Repositories:  repos,
		FailedRepos:   res.FailedRepos,
		Weights:       scorer.Weights(),
		DataSources:   cfg.DataSources.Enabled,
		Normalization: res.Normalization,
		Dependencies:  res.Dependencies,
		Interrupted:   res.Interrupted,
	})

	out := &outcome{Report: rep}
	if cfg.Output.Format == "json" || cfg.Output.Format == "both" {
		out.JSONPath = cfg.ReportPath(cfg.GitHub.Org, res.StartedAt)
		if err := report.WriteJSON(out.JSONPath, rep); err != nil {
			return nil, err
		}
		log.Info("report saved", "path", out.JSONPath)
	}
	if opts.WriteCSV || cfg.Output.Format == "csv" || cfg.Output.Format == "both" {
		out.CSVPath = cfg.CSVPath(cfg.GitHub.Org, res.StartedAt)
		if err := report.WriteCSV(out.CSVPath, rep); err != nil {
			return nil, err
		}
		log.Info("CSV export saved", "path", out.CSVPath)
	}

	log.Info("analysis finished",
		"org", cfg.GitHub.Org,
		"dependencies", rep.Summary.TotalDependencies,
		"critical", rep.Summary.Critical,
		"duration", time.Since(res.StartedAt).Round(time.Second))
	return out, runErr
}
