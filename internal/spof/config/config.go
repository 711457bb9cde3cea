// Package config loads and validates the spof YAML configuration.
//
// String values may reference environment variables as ${NAME}; a reference
// to an unset variable is an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/build-flow-labs/spof/internal/spof/score"
	"github.com/build-flow-labs/spof/sbom"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "config.yaml"

// placeholderOrg is the org shipped in the sample config.
const placeholderOrg = "example-org"

// Data sources.
const (
	SourceGitHub  = "github"
	SourceDepsDev = "depsdev"
)

// KnownSources lists every data source that can be enabled.
var KnownSources = []string{SourceGitHub, SourceDepsDev}

// SBOM collection modes.
const (
	ModeSyft     = "syft"
	ModeManifest = "manifest"
)

// ErrInvalid marks configuration errors.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full tool configuration. It is treated as immutable once
// loaded and validated.
type Config struct {
	GitHub      GitHub      `yaml:"github"`
	Scoring     Scoring     `yaml:"scoring"`
	DataSources DataSources `yaml:"data_sources"`
	Output      Output      `yaml:"output"`
	Syft        Syft        `yaml:"syft"`
	Cache       Cache       `yaml:"cache"`
	Concurrency Concurrency `yaml:"concurrency"`
}

// GitHub selects the organization to analyze.
type GitHub struct {
	Org      string `yaml:"org"`
	Token    string `yaml:"token"`
	MaxRepos int    `yaml:"max_repos"`
	// BaseURL points at a GitHub Enterprise API; empty means github.com.
	BaseURL string `yaml:"base_url,omitempty"`
}

// Scoring configures the composite score.
type Scoring struct {
	Weights       score.Weights `yaml:"weights"`
	Normalization string        `yaml:"normalization"`
}

// DataSources lists the enabled external sources.
type DataSources struct {
	Enabled []string `yaml:"enabled"`
}

// Output configures where reports are written.
type Output struct {
	Format    string `yaml:"format"`
	File      string `yaml:"file"`
	Directory string `yaml:"directory"`
}

// Syft configures SBOM generation.
type Syft struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
	Mode   string `yaml:"mode"`
}

// Cache configures the response cache.
type Cache struct {
	Directory string        `yaml:"directory"`
	TTL       time.Duration `yaml:"ttl"`
	Enabled   bool          `yaml:"enabled"`
}

// Concurrency bounds the scoring worker pool and per-source request slots.
type Concurrency struct {
	Workers int `yaml:"workers"`
	GitHub  int `yaml:"github"`
	DepsDev int `yaml:"depsdev"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		GitHub: GitHub{
			Token:    "${GITHUB_TOKEN}",
			MaxRepos: 20,
		},
		Scoring: Scoring{
			Weights:       score.DefaultWeights(),
			Normalization: "minmax",
		},
		DataSources: DataSources{Enabled: []string{SourceGitHub, SourceDepsDev}},
		Output: Output{
			Format:    "json",
			File:      "spof_analysis_{org}_{date}.json",
			Directory: "output",
		},
		Syft: Syft{
			Format: string(sbom.FormatCycloneDXJSON),
			Mode:   ModeSyft,
		},
		Cache: Cache{
			Directory: ".cache",
			TTL:       24 * time.Hour,
			Enabled:   true,
		},
		Concurrency: Concurrency{
			Workers: 8,
			GitHub:  4,
			DepsDev: 8,
		},
	}
}

// Load reads the file at path over the defaults and substitutes environment
// variables. It does not validate; call Validate once overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over the defaults.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg := Default()
	if len(root.Content) > 0 {
		if err := root.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding config: %w", err)
		}
	}
	if err := cfg.expandEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv replaces ${NAME} references with environment values.
func ExpandEnv(s string) (string, error) {
	var missing []string
	out := envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: environment variable not set: %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return out, nil
}

func (c *Config) expandEnv() error {
	fields := []*string{
		&c.GitHub.Org, &c.GitHub.BaseURL,
		&c.Output.File, &c.Output.Directory,
		&c.Syft.Path, &c.Cache.Directory,
	}
	for _, f := range fields {
		v, err := ExpandEnv(*f)
		if err != nil {
			return err
		}
		*f = v
	}

	// An unset token is reported by Validate, which also covers the commands
	// that never talk to GitHub.
	if v, err := ExpandEnv(c.GitHub.Token); err == nil {
		c.GitHub.Token = v
	} else {
		c.GitHub.Token = ""
	}
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	return nil
}

// Overrides are command-line values that take precedence over the file.
type Overrides struct {
	Org      string
	MaxRepos int
	Workers  int
	NoCache  bool
}

// Apply merges non-zero overrides into the configuration.
func (c *Config) Apply(o Overrides) {
	if o.Org != "" {
		c.GitHub.Org = o.Org
	}
	if o.MaxRepos != 0 {
		c.GitHub.MaxRepos = o.MaxRepos
	}
	if o.Workers != 0 {
		c.Concurrency.Workers = o.Workers
	}
	if o.NoCache {
		c.Cache.Enabled = false
	}
}

// Validate checks the settings an analysis run depends on.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.GitHub.Org {
	case "":
		invalid("github.org is required")
	case placeholderOrg:
		invalid("github.org is still %q; pass an organization or edit the config", placeholderOrg)
	}
	if c.GitHub.Token == "" {
		invalid("GitHub token not provided; set GITHUB_TOKEN")
	}
	if c.GitHub.MaxRepos <= 0 {
		invalid("github.max_repos must be positive, got %d", c.GitHub.MaxRepos)
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := score.NormalizerFor(c.Scoring.Normalization); err != nil {
		invalid("scoring.normalization: %v", err)
	}
	for _, s := range c.DataSources.Enabled {
		if !slices.Contains(KnownSources, s) {
			invalid("unknown data source %q (known: %s)", s, strings.Join(KnownSources, ", "))
		}
	}
	switch c.Output.Format {
	case "json", "csv", "both":
	default:
		invalid("output.format must be json, csv or both, got %q", c.Output.Format)
	}
	if _, err := sbom.ParseFormat(c.Syft.Format); err != nil {
		invalid("syft.format: %v", err)
	}
	if c.Syft.Mode != ModeSyft && c.Syft.Mode != ModeManifest {
		invalid("syft.mode must be %s or %s, got %q", ModeSyft, ModeManifest, c.Syft.Mode)
	}
	if c.Cache.TTL <= 0 {
		invalid("cache.ttl must be positive")
	}
	if c.Concurrency.Workers <= 0 || c.Concurrency.GitHub <= 0 || c.Concurrency.DepsDev <= 0 {
		invalid("concurrency limits must be positive")
	}
	return errors.Join(errs...)
}

// SourceEnabled reports whether a data source is enabled.
func (c *Config) SourceEnabled(source string) bool {
	return slices.Contains(c.DataSources.Enabled, source)
}

// ReportPath renders the output file template for an org and run time.
func (c *Config) ReportPath(org string, at time.Time) string {
	return c.outputPath(c.Output.File, org, at)
}

// CSVPath is the CSV export path next to the JSON report.
func (c *Config) CSVPath(org string, at time.Time) string {
	name := strings.TrimSuffix(c.Output.File, filepath.Ext(c.Output.File)) + ".csv"
	return c.outputPath(name, org, at)
}

func (c *Config) outputPath(template, org string, at time.Time) string {
	name := strings.NewReplacer(
		"{org}", org,
		"{date}", at.Format("20060102_150405"),
	).Replace(template)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Directory, name)
}

// Write saves the configuration as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
