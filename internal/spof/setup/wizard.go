// Package setup implements the interactive `spof init` wizard that writes a
// starter configuration file.
package setup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/build-flow-labs/spof/internal/spof/config"
)

// ErrAborted is returned when the user declines to continue.
var ErrAborted = errors.New("setup aborted")

// StepResult records the outcome of a single wizard step.
type StepResult struct {
	Step   string
	Action string // set, warning or written
	Detail string
}

// Wizard asks for the settings of a new configuration file.
type Wizard struct {
	prompt   *prompter
	out      io.Writer
	logger   *slog.Logger
	lookPath func(string) (string, error)
	getenv   func(string) string
	results  []StepResult
}

// NewWizard creates a wizard reading answers from in and writing prompts to out.
func NewWizard(in io.Reader, out io.Writer, logger *slog.Logger) *Wizard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wizard{
		prompt:   newPrompter(in, out),
		out:      out,
		logger:   logger,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
	}
}

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Run walks through the questions and writes the configuration to path.
// org pre-fills the organization question.
func (w *Wizard) Run(path, org string) (*config.Config, error) {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "  SPOF Analyzer Setup")
	fmt.Fprintln(w.out, "  ===================")
	fmt.Fprintln(w.out)

	if _, err := os.Stat(path); err == nil {
		if !w.prompt.askYesNo(fmt.Sprintf("  %s already exists. Overwrite?", path), false) {
			return nil, fmt.Errorf("%w: %s exists", ErrAborted, path)
		}
	}

	cfg := config.Default()

	org, ok := w.prompt.askRequired("GitHub organization", org)
	if !ok {
		return nil, fmt.Errorf("%w: no organization given", ErrAborted)
	}
	cfg.GitHub.Org = org
	w.record("Organization", "set", org)

	tokenVar := w.prompt.askDefault("Environment variable holding the GitHub token", "GITHUB_TOKEN")
	if !envName.MatchString(tokenVar) {
		w.record("Token", "warning", fmt.Sprintf("%q is not a valid variable name, using GITHUB_TOKEN", tokenVar))
		tokenVar = "GITHUB_TOKEN"
	}
	cfg.GitHub.Token = "${" + tokenVar + "}"
	if w.getenv(tokenVar) == "" {
		w.record("Token", "warning", tokenVar+" is not set in this shell; export it before running analyze")
	} else {
		w.record("Token", "set", "read from $"+tokenVar)
	}

	cfg.GitHub.MaxRepos = w.prompt.askPositive("Maximum repositories to analyze", cfg.GitHub.MaxRepos)
	w.record("Max repositories", "set", fmt.Sprint(cfg.GitHub.MaxRepos))

	sources := w.prompt.askMultiSelect("Data sources to enable:", []string{
		"github  (stars, contributors, commit and release activity)",
		"depsdev (dependents, security advisories, source links)",
	})
	cfg.DataSources.Enabled = cfg.DataSources.Enabled[:0]
	for _, i := range sources {
		cfg.DataSources.Enabled = append(cfg.DataSources.Enabled, config.KnownSources[i])
	}
	w.record("Data sources", "set", strings.Join(cfg.DataSources.Enabled, ", "))

	modes := []string{config.ModeSyft, config.ModeManifest}
	cfg.Syft.Mode = modes[w.prompt.askChoice("SBOM collection:", []string{
		"syft     (clone each repository and scan it; needs syft and git)",
		"manifest (read go.mod, package.json and requirements.txt through the API)",
	}, 0)]
	if cfg.Syft.Mode == config.ModeSyft {
		bin := cfg.Syft.Path
		if bin == "" {
			bin = "syft"
		}
		if _, err := w.lookPath(bin); err != nil {
			w.record("SBOM collection", "warning", "syft not found on PATH; install it or choose manifest mode")
		} else {
			w.record("SBOM collection", "set", cfg.Syft.Mode)
		}
	} else {
		w.record("SBOM collection", "set", cfg.Syft.Mode)
	}

	formats := []string{"json", "csv", "both"}
	cfg.Output.Format = formats[w.prompt.askChoice("Report format:", formats, 0)]
	w.record("Report format", "set", cfg.Output.Format)

	if err := cfg.Write(path); err != nil {
		return nil, err
	}
	w.record("Config", "written", path)
	w.logger.Info("configuration written", "path", path, "org", cfg.GitHub.Org)

	w.printSummary(path)
	return &cfg, nil
}

// Results returns the recorded step outcomes.
func (w *Wizard) Results() []StepResult { return w.results }

func (w *Wizard) record(step, action, detail string) {
	w.results = append(w.results, StepResult{Step: step, Action: action, Detail: detail})
	marker := "+"
	if action == "warning" {
		marker = "!"
	}
	fmt.Fprintf(w.out, "  [%s] %s: %s\n", marker, step, detail)
}

func (w *Wizard) printSummary(path string) {
	fmt.Fprintln(w.out)
	fmt.Fprintf(w.out, "  Configuration saved to %s\n", path)
	fmt.Fprintln(w.out, "  Next: spof analyze --config "+path)
	fmt.Fprintln(w.out)
}
