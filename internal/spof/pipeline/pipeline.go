// Package pipeline runs a full analysis: it selects an organization's
// repositories, collects their dependencies, enriches every canonical
// dependency from the forge and registry sources on a bounded worker pool,
// scores it and rescales the scores over the population.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/build-flow-labs/spof/internal/spof/github"
	"github.com/build-flow-labs/spof/internal/spof/identity"
	"github.com/build-flow-labs/spof/internal/spof/metrics"
	"github.com/build-flow-labs/spof/internal/spof/score"
	"github.com/build-flow-labs/spof/sbom"
)

var (
	// ErrNoRepositories is returned when the organization has no eligible
	// repositories.
	ErrNoRepositories = errors.New("no repositories found")
	// ErrInterrupted is returned together with a partial result when the
	// context is cancelled mid-run.
	ErrInterrupted = errors.New("analysis interrupted")
)

// RepoLister selects the repositories of an organization.
type RepoLister interface {
	TopRepos(ctx context.Context, org string, max int) ([]github.Repo, error)
}

// SBOMSource collects the dependency occurrences of one repository.
type SBOMSource interface {
	Dependencies(ctx context.Context, repo github.Repo) ([]sbom.Dependency, error)
}

// ForgeSource fetches source repository metrics. A nil result means the
// repository is unknown.
type ForgeSource interface {
	RepoMetrics(ctx context.Context, owner, repo string) (*metrics.ForgeMetrics, error)
}

// RegistrySource fetches package registry metrics.
type RegistrySource interface {
	PackageMetrics(ctx context.Context, ecosystem, name string) (*metrics.RegistryMetrics, error)
}

// Pipeline wires the collaborators of one analysis. Forge and Registry may be
// nil when the corresponding data source is disabled.
type Pipeline struct {
	Repos      RepoLister
	SBOM       SBOMSource
	Forge      ForgeSource
	Registry   RegistrySource
	Scorer     *score.Scorer
	Normalizer score.Normalizer
	Logger     *slog.Logger

	// Workers bounds the dependencies evaluated concurrently. ForgeLimit and
	// RegistryLimit bound in-flight requests per source.
	Workers       int
	ForgeLimit    int
	RegistryLimit int

	// Progress, when non-nil, receives progress bars.
	Progress io.Writer
}

// Result is the outcome of one run.
type Result struct {
	Org           string
	StartedAt     time.Time
	Repos         []github.Repo
	FailedRepos   []string
	Dependencies  []score.ScoredDependency
	Dropped       int
	Skipped       int
	Normalization string
	Interrupted   bool
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Run analyzes up to maxRepos repositories of org. When ctx is cancelled
// during enrichment, Run returns the dependencies scored so far, normalized,
// with Interrupted set, together with ErrInterrupted.
func (p *Pipeline) Run(ctx context.Context, org string, maxRepos int) (*Result, error) {
	if p.Scorer == nil {
		return nil, errors.New("pipeline: scorer is required")
	}
	norm := p.Normalizer
	if norm == nil {
		norm = score.MinMax{}
	}
	log := p.logger()
	res := &Result{Org: org, StartedAt: time.Now(), Normalization: norm.Name()}

	log.Info("fetching repositories", "org", org, "max_repos", maxRepos)
	repos, err := p.Repos.TopRepos(ctx, org, maxRepos)
	if err != nil {
		return nil, fmt.Errorf("fetching repositories: %w", err)
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoRepositories, org)
	}
	res.Repos = repos

	agg, err := p.collect(ctx, repos, res)
	if err != nil {
		return res, err
	}
	res.Dropped = agg.Dropped()
	log.Info("aggregated dependencies", "unique", agg.Len(), "dropped", res.Dropped)

	scored, skipped := p.enrich(ctx, agg.Dependencies(), len(repos))
	res.Skipped = skipped

	scored = norm.Normalize(scored)
	score.SortByScore(scored)
	res.Dependencies = scored

	if ctx.Err() != nil {
		res.Interrupted = true
		log.Warn("analysis interrupted, reporting partial results",
			"scored", len(scored), "skipped", skipped)
		return res, ErrInterrupted
	}
	log.Info("analysis complete", "dependencies", len(scored), "normalization", norm.Name())
	return res, nil
}

// collect gathers the SBOMs sequentially. A repository whose SBOM cannot be
// produced is logged and skipped.
func (p *Pipeline) collect(ctx context.Context, repos []github.Repo, res *Result) (*identity.Aggregator, error) {
	log := p.logger()
	bar := p.bar(len(repos), "generating SBOMs")
	agg := identity.NewAggregator()
	for _, repo := range repos {
		if ctx.Err() != nil {
			res.Interrupted = true
			return nil, ErrInterrupted
		}
		deps, err := p.SBOM.Dependencies(ctx, repo)
		if err != nil {
			if ctx.Err() != nil {
				res.Interrupted = true
				return nil, ErrInterrupted
			}
			log.Error("collecting dependencies", "repo", repo.FullName, "error", err)
			res.FailedRepos = append(res.FailedRepos, repo.FullName)
		} else {
			log.Debug("collected dependencies", "repo", repo.FullName, "count", len(deps))
			agg.Add(repo.FullName, deps)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return agg, nil
}

// enrich scores every dependency on a bounded pool. Dependencies interrupted
// by cancellation are dropped and counted as skipped.
func (p *Pipeline) enrich(ctx context.Context, deps []*identity.Dependency, totalRepos int) ([]score.ScoredDependency, int) {
	workers := positive(p.Workers, 8)
	forgeSem := semaphore.NewWeighted(int64(positive(p.ForgeLimit, workers)))
	registrySem := semaphore.NewWeighted(int64(positive(p.RegistryLimit, workers)))
	bar := p.bar(len(deps), "scoring dependencies")

	results := make([]*score.ScoredDependency, len(deps))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, dep := range deps {
		if ctx.Err() != nil {
			break
		}
		i, dep := i, dep
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			b, err := p.bundle(ctx, dep, forgeSem, registrySem)
			if err != nil {
				return nil
			}
			sd := p.Scorer.Score(dep, b, totalRepos)
			results[i] = &sd
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	scored := make([]score.ScoredDependency, 0, len(deps))
	for _, r := range results {
		if r != nil {
			scored = append(scored, *r)
		}
	}
	return scored, len(deps) - len(scored)
}

// bundle gathers the external views of one dependency. Source failures are
// logged and leave that part of the bundle absent; only cancellation is
// returned as an error.
func (p *Pipeline) bundle(ctx context.Context, dep *identity.Dependency, forgeSem, registrySem *semaphore.Weighted) (metrics.Bundle, error) {
	log := p.logger()
	var b metrics.Bundle

	if p.Registry != nil {
		if err := registrySem.Acquire(ctx, 1); err != nil {
			return b, err
		}
		reg, err := p.Registry.PackageMetrics(ctx, dep.Ecosystem, dep.Name)
		registrySem.Release(1)
		if err != nil {
			if ctx.Err() != nil {
				return b, ctx.Err()
			}
			log.Warn("fetching registry metrics", "dependency", dep.Key().String(), "error", err)
		} else {
			b.Registry = reg
		}
	}

	if p.Forge != nil {
		if repo, ok := metrics.InferForgeRepo(dep.Key(), b.Registry); ok {
			if err := forgeSem.Acquire(ctx, 1); err != nil {
				return b, err
			}
			fm, err := p.Forge.RepoMetrics(ctx, repo.Owner, repo.Repo)
			forgeSem.Release(1)
			if err != nil {
				if ctx.Err() != nil {
					return b, ctx.Err()
				}
				log.Warn("fetching forge metrics", "dependency", dep.Key().String(), "repo", repo.String(), "error", err)
			} else {
				b.Forge = fm
			}
		}
	}

	return b, ctx.Err()
}

func (p *Pipeline) bar(n int, desc string) *progressbar.ProgressBar {
	if p.Progress == nil || n == 0 {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(p.Progress),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.Progress) }),
	)
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
