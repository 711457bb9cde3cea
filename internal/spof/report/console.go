package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/build-flow-labs/spof/internal/spof/score"
)

// consoleLimit is how many dependencies per band the summary lists.
const consoleLimit = 3

var bandStyles = map[score.Band]struct {
	title string
	color *color.Color
}{
	score.BandCritical: {"CRITICAL", color.New(color.FgRed, color.Bold)},
	score.BandHigh:     {"HIGH PRIORITY", color.New(color.FgYellow, color.Bold)},
	score.BandMedium:   {"MEDIUM PRIORITY", color.New(color.FgGreen, color.Bold)},
}

// PrintSummary writes the executive summary of a report.
func PrintSummary(out io.Writer, r *Report) {
	rule := strings.Repeat("=", 60)
	bold := color.New(color.Bold)

	fmt.Fprintln(out)
	fmt.Fprintln(out, rule)
	bold.Fprintf(out, "SPOF Analysis Report: %s\n", r.Organization)
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "\nAnalysis Date: %s\n", r.AnalysisDate.Format(time.RFC3339))
	fmt.Fprintf(out, "Repositories Analyzed: %d\n", r.Config.ReposAnalyzed)
	if r.Interrupted {
		color.New(color.FgYellow).Fprintln(out, "Analysis was interrupted; results are partial.")
	}

	s := r.Summary
	fmt.Fprintf(out, "\nTotal Dependencies: %d\n", s.TotalDependencies)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  Critical (>=80):\t%d\n", s.Critical)
	fmt.Fprintf(w, "  High (60-79):\t%d\n", s.High)
	fmt.Fprintf(w, "  Medium (40-59):\t%d\n", s.Medium)
	fmt.Fprintf(w, "  Low (20-39):\t%d\n", s.Low)
	fmt.Fprintf(w, "  Minimal (<20):\t%d\n", s.Minimal)
	w.Flush()

	for _, band := range []score.Band{score.BandCritical, score.BandHigh, score.BandMedium} {
		printBand(out, r, band)
	}

	if len(r.Recommendations) > 0 {
		bold.Fprintln(out, "\nRecommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(out, "\n  [%s] %d dependencies\n", strings.ToUpper(string(rec.Priority)), rec.Count)
			fmt.Fprintf(out, "  %s\n", rec.Action)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out)
}

func printBand(out io.Writer, r *Report, band score.Band) {
	total := r.Summary.Count(band)
	if total == 0 {
		return
	}
	style := bandStyles[band]
	style.color.Fprintf(out, "\n%s (Top %d of %d):\n", style.title, min(consoleLimit, total), total)

	i := 0
	for _, d := range r.Dependencies {
		if d.Band() != band {
			continue
		}
		i++
		fmt.Fprintf(out, "  %d. %s (%s) - Score: %.1f\n", i, d.Name, d.Ecosystem, d.SPOFScore)
		fmt.Fprintf(out, "     Internal: %.0f | Ecosystem: %.0f\n",
			d.Metrics.InternalCriticality, d.Metrics.EcosystemPopularity)
		if i == consoleLimit {
			break
		}
	}
}
