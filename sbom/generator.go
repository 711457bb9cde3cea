package sbom

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the command, folding stderr into the returned error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Cache stores parsed results between runs.
type Cache interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// Generator produces dependency lists for repositories with syft.
type Generator struct {
	SyftPath string
	Format   Format
	Runner   CommandRunner
	Cache    Cache
	Logger   *slog.Logger
	// TempDir is the parent directory for clones; empty means os.TempDir.
	TempDir string
}

// NewGenerator creates a Generator using the syft binary at syftPath
// (empty means "syft" on PATH).
func NewGenerator(syftPath string, format Format, cache Cache, logger *slog.Logger) *Generator {
	if syftPath == "" {
		syftPath = "syft"
	}
	if format == "" {
		format = FormatCycloneDXJSON
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		SyftPath: syftPath,
		Format:   format,
		Runner:   ExecRunner{},
		Cache:    cache,
		Logger:   logger,
	}
}

// Generate clones the repository shallowly, runs syft over the checkout and
// returns the parsed occurrences. Results are cached per repository.
func (g *Generator) Generate(ctx context.Context, cloneURL, fullName string) ([]Dependency, error) {
	key := "sbom:" + fullName
	if g.Cache != nil {
		var cached []Dependency
		if ok, err := g.Cache.Get(key, &cached); err != nil {
			g.Logger.Warn("reading cached SBOM", "repo", fullName, "error", err)
		} else if ok {
			g.Logger.Info("using cached SBOM", "repo", fullName)
			return cached, nil
		}
	}

	tmp, err := os.MkdirTemp(g.TempDir, "spof-")
	if err != nil {
		return nil, fmt.Errorf("creating clone directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	dir := filepath.Join(tmp, strings.ReplaceAll(fullName, "/", "_"))
	g.Logger.Debug("cloning repository", "url", cloneURL, "dir", dir)
	if _, err := g.Runner.Run(ctx, "git", "clone", "--depth", "1", cloneURL, dir); err != nil {
		return nil, fmt.Errorf("cloning %s: %w", fullName, err)
	}

	out, err := g.Runner.Run(ctx, g.SyftPath, dir, "-o", string(g.Format), "-q")
	if err != nil {
		return nil, fmt.Errorf("running syft on %s: %w", fullName, err)
	}

	deps, err := Parse(g.Format, out)
	if err != nil {
		return nil, fmt.Errorf("reading syft output for %s: %w", fullName, err)
	}
	g.Logger.Debug("parsed SBOM", "repo", fullName, "components", len(deps))

	if g.Cache != nil {
		if err := g.Cache.Set(key, deps); err != nil {
			g.Logger.Warn("caching SBOM", "repo", fullName, "error", err)
		}
	}
	return deps, nil
}
