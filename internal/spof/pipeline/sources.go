package pipeline

import (
	"context"
	"fmt"

	"github.com/build-flow-labs/spof/internal/spof/github"
	"github.com/build-flow-labs/spof/internal/spof/metrics"
	"github.com/build-flow-labs/spof/sbom"
)

// SyftSource produces SBOMs by cloning each repository and running syft.
type SyftSource struct {
	Generator *sbom.Generator
}

func (s SyftSource) Dependencies(ctx context.Context, repo github.Repo) ([]sbom.Dependency, error) {
	return s.Generator.Generate(ctx, repo.CloneURL, repo.FullName)
}

// ManifestFetcher returns the manifest files at the root of a repository.
type ManifestFetcher interface {
	ManifestFiles(ctx context.Context, owner, repo string) (map[string]string, error)
}

// ManifestSource reads declared dependencies from manifests fetched through
// the forge API. It needs no local tooling but sees no transitive packages.
type ManifestSource struct {
	Fetcher ManifestFetcher
}

func (s ManifestSource) Dependencies(ctx context.Context, repo github.Repo) ([]sbom.Dependency, error) {
	or, ok := metrics.ParseOwnerRepo(repo.FullName)
	if !ok {
		return nil, fmt.Errorf("invalid repository name %q", repo.FullName)
	}
	files, err := s.Fetcher.ManifestFiles(ctx, or.Owner, or.Repo)
	if err != nil {
		return nil, err
	}
	return sbom.ParseManifests(files)
}
