package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/build-flow-labs/spof/internal/spof/github"
	"github.com/build-flow-labs/spof/internal/spof/metrics"
	"github.com/build-flow-labs/spof/internal/spof/score"
	"github.com/build-flow-labs/spof/sbom"
)

type fakeRepos struct {
	repos []github.Repo
	err   error
}

func (f fakeRepos) TopRepos(ctx context.Context, org string, max int) ([]github.Repo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if max > 0 && len(f.repos) > max {
		return f.repos[:max], nil
	}
	return f.repos, nil
}

type fakeSBOM map[string][]sbom.Dependency

func (f fakeSBOM) Dependencies(ctx context.Context, repo github.Repo) ([]sbom.Dependency, error) {
	deps, ok := f[repo.FullName]
	if !ok {
		return nil, errors.New("syft failed")
	}
	return deps, nil
}

type registryFunc func(ctx context.Context, ecosystem, name string) (*metrics.RegistryMetrics, error)

func (f registryFunc) PackageMetrics(ctx context.Context, ecosystem, name string) (*metrics.RegistryMetrics, error) {
	return f(ctx, ecosystem, name)
}

type forgeFunc func(ctx context.Context, owner, repo string) (*metrics.ForgeMetrics, error)

func (f forgeFunc) RepoMetrics(ctx context.Context, owner, repo string) (*metrics.ForgeMetrics, error) {
	return f(ctx, owner, repo)
}

func repos(names ...string) []github.Repo {
	out := make([]github.Repo, len(names))
	for i, n := range names {
		out[i] = github.Repo{Name: n, FullName: "acme/" + n}
	}
	return out
}

func npm(name string) sbom.Dependency {
	return sbom.Dependency{Name: name, Version: "1.0.0", Ecosystem: "npm", Relation: sbom.RelationDirect}
}

func newScorer(t *testing.T) *score.Scorer {
	t.Helper()
	s, err := score.NewScorer(score.DefaultWeights(),
		testclock.NewFakePassiveClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return s
}

func TestRun(t *testing.T) {
	var registryCalls atomic.Int32
	p := &Pipeline{
		Repos: fakeRepos{repos: repos("api", "web", "broken")},
		SBOM: fakeSBOM{
			"acme/api": {npm("lodash"), {Name: "Requests", Version: "2.31.0", Ecosystem: "pypi"}, {Name: ""}},
			"acme/web": {npm("lodash")},
		},
		Registry: registryFunc(func(ctx context.Context, eco, name string) (*metrics.RegistryMetrics, error) {
			registryCalls.Add(1)
			if name == "lodash" {
				return &metrics.RegistryMetrics{
					DataAvailable:  true,
					DependentCount: 100000,
					Links:          metrics.Links{Repository: "https://github.com/lodash/lodash"},
				}, nil
			}
			return &metrics.RegistryMetrics{}, nil
		}),
		Forge: forgeFunc(func(ctx context.Context, owner, repo string) (*metrics.ForgeMetrics, error) {
			assert.Equal(t, "lodash/lodash", owner+"/"+repo)
			return &metrics.ForgeMetrics{FullName: "lodash/lodash", Stars: 58000, Contributors: 342, OrgBacked: true}, nil
		}),
		Scorer:  newScorer(t),
		Workers: 4,
	}

	res, err := p.Run(context.Background(), "acme", 10)
	require.NoError(t, err)

	assert.False(t, res.Interrupted)
	assert.Equal(t, "minmax", res.Normalization)
	assert.Len(t, res.Repos, 3)
	assert.Equal(t, []string{"acme/broken"}, res.FailedRepos)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, int32(2), registryCalls.Load())

	require.Len(t, res.Dependencies, 2)
	top, bottom := res.Dependencies[0], res.Dependencies[1]
	assert.Equal(t, "lodash", top.Name)
	assert.Equal(t, 100.0, top.Score)
	assert.Equal(t, 1.0, top.Confidence)
	assert.Equal(t, 2, top.Raw.Usage.Count)
	assert.Equal(t, "lodash/lodash", top.Raw.ForgeRepo)

	assert.Equal(t, "requests", bottom.NormalizedName)
	assert.Equal(t, 0.0, bottom.Score)
	assert.Equal(t, 0.0, bottom.Confidence)
	assert.Greater(t, top.RawScore, bottom.RawScore)
}

func TestRunSourceFailuresDegrade(t *testing.T) {
	p := &Pipeline{
		Repos: fakeRepos{repos: repos("api")},
		SBOM:  fakeSBOM{"acme/api": {npm("left-pad")}},
		Registry: registryFunc(func(ctx context.Context, eco, name string) (*metrics.RegistryMetrics, error) {
			return nil, errors.New("deps.dev unavailable")
		}),
		Forge: forgeFunc(func(ctx context.Context, owner, repo string) (*metrics.ForgeMetrics, error) {
			t.Error("forge should not be queried without a known repository")
			return nil, nil
		}),
		Scorer:     newScorer(t),
		Normalizer: score.None{},
	}

	res, err := p.Run(context.Background(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, res.Dependencies, 1)
	d := res.Dependencies[0]
	assert.Equal(t, 0.0, d.Confidence)
	assert.Nil(t, d.Raw.Registry)
	assert.Nil(t, d.Raw.Forge)
	// 100 internal criticality, 50 maintainer risk, 100 security health.
	assert.Equal(t, 55.0, d.Score)
}

func TestRunNoRepositories(t *testing.T) {
	p := &Pipeline{Repos: fakeRepos{}, SBOM: fakeSBOM{}, Scorer: newScorer(t)}

	_, err := p.Run(context.Background(), "empty", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRepositories)
}

func TestRunRepoListError(t *testing.T) {
	p := &Pipeline{Repos: fakeRepos{err: errors.New("bad credentials")}, Scorer: newScorer(t)}

	_, err := p.Run(context.Background(), "acme", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
	assert.NotErrorIs(t, err, ErrNoRepositories)
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &Pipeline{
		Repos: fakeRepos{repos: repos("api")},
		SBOM:  fakeSBOM{"acme/api": {npm("a"), npm("b"), npm("c")}},
		Registry: registryFunc(func(ctx context.Context, eco, name string) (*metrics.RegistryMetrics, error) {
			if name == "b" {
				cancel()
				return nil, ctx.Err()
			}
			return &metrics.RegistryMetrics{DataAvailable: true, DependentCount: 10}, nil
		}),
		Scorer:  newScorer(t),
		Workers: 1,
	}

	res, err := p.Run(ctx, "acme", 10)
	require.ErrorIs(t, err, ErrInterrupted)
	require.NotNil(t, res)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Dependencies, 1)
	assert.Equal(t, "a", res.Dependencies[0].Name)
}

func TestRunInterruptedBeforeEnrichment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Pipeline{
		Repos:  fakeRepos{repos: repos("api")},
		SBOM:   fakeSBOM{"acme/api": {npm("a")}},
		Scorer: newScorer(t),
	}

	res, err := p.Run(ctx, "acme", 10)
	require.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, res.Interrupted)
	assert.Empty(t, res.Dependencies)
}

func TestRunForgeLimit(t *testing.T) {
	var inflight, peak atomic.Int32
	var mu sync.Mutex
	seen := map[string]bool{}

	p := &Pipeline{
		Repos: fakeRepos{repos: repos("api")},
		SBOM: fakeSBOM{"acme/api": {
			{Name: "github.com/a/one", Version: "v1.0.0", Ecosystem: "golang"},
			{Name: "github.com/b/two", Version: "v1.0.0", Ecosystem: "golang"},
			{Name: "github.com/c/three", Version: "v1.0.0", Ecosystem: "golang"},
			{Name: "github.com/d/four", Version: "v1.0.0", Ecosystem: "golang"},
		}},
		Forge: forgeFunc(func(ctx context.Context, owner, repo string) (*metrics.ForgeMetrics, error) {
			n := inflight.Add(1)
			defer inflight.Add(-1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			seen[owner+"/"+repo] = true
			mu.Unlock()
			return &metrics.ForgeMetrics{FullName: owner + "/" + repo}, nil
		}),
		Scorer:     newScorer(t),
		Workers:    4,
		ForgeLimit: 1,
	}

	res, err := p.Run(context.Background(), "acme", 10)
	require.NoError(t, err)
	assert.Len(t, res.Dependencies, 4)
	assert.Equal(t, int32(1), peak.Load())
	assert.Len(t, seen, 4)
}

func TestRunQueriesRegistryWithDeclaredName(t *testing.T) {
	var mu sync.Mutex
	var queried []string
	p := &Pipeline{
		Repos: fakeRepos{repos: repos("api", "web")},
		SBOM: fakeSBOM{
			"acme/api": {{Name: "github.com/BurntSushi/toml", Version: "v1.3.2", Ecosystem: "golang"}},
			"acme/web": {{Name: "github.com/burntsushi/toml", Version: "v1.3.2", Ecosystem: "golang"}},
		},
		Registry: registryFunc(func(ctx context.Context, eco, name string) (*metrics.RegistryMetrics, error) {
			mu.Lock()
			queried = append(queried, name)
			mu.Unlock()
			return &metrics.RegistryMetrics{DataAvailable: true}, nil
		}),
		Scorer: newScorer(t),
	}

	res, err := p.Run(context.Background(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, res.Dependencies, 1)
	assert.Equal(t, []string{"github.com/BurntSushi/toml"}, queried)
}

type fakeFetcher map[string]string

func (f fakeFetcher) ManifestFiles(ctx context.Context, owner, repo string) (map[string]string, error) {
	if owner != "acme" || repo != "api" {
		return nil, errors.New("unexpected repository")
	}
	return f, nil
}

func TestManifestSource(t *testing.T) {
	src := ManifestSource{Fetcher: fakeFetcher{
		"requirements.txt": "requests==2.31.0\nflask>=2.0\n",
	}}

	deps, err := src.Dependencies(context.Background(), github.Repo{FullName: "acme/api"})
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "pypi", deps[0].Ecosystem)

	_, err = src.Dependencies(context.Background(), github.Repo{FullName: "not-a-full-name"})
	assert.Error(t, err)
}
