// Package report turns scored dependencies into the analysis report and
// renders it as JSON, CSV or a console summary.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/build-flow-labs/spof/internal/spof/metrics"
	"github.com/build-flow-labs/spof/internal/spof/score"
)

// recommendationLimit caps the dependency names listed per recommendation.
const recommendationLimit = 5

// Report is the persisted result of one analysis.
type Report struct {
	ID              string           `json:"id"`
	Organization    string           `json:"organization"`
	AnalysisDate    time.Time        `json:"analysis_date"`
	Config          RunConfig        `json:"config"`
	Summary         Summary          `json:"summary"`
	Dependencies    []Dependency     `json:"dependencies"`
	Recommendations []Recommendation `json:"recommendations"`
	Interrupted     bool             `json:"interrupted"`
}

// RunConfig records the settings an analysis ran with.
type RunConfig struct {
	ReposAnalyzed      int           `json:"repos_analyzed"`
	Repositories       []string      `json:"repositories,omitempty"`
	FailedRepositories []string      `json:"failed_repositories,omitempty"`
	ScoringWeights     score.Weights `json:"scoring_weights"`
	DataSourcesEnabled []string      `json:"data_sources_enabled"`
	Normalization      string        `json:"normalization"`
}

// Summary counts dependencies per band.
type Summary struct {
	TotalDependencies int `json:"total_dependencies"`
	Critical          int `json:"critical_dependencies"`
	High              int `json:"high_priority"`
	Medium            int `json:"medium_priority"`
	Low               int `json:"low_priority"`
	Minimal           int `json:"minimal_priority"`
}

// Count returns the number of dependencies in a band.
func (s Summary) Count(b score.Band) int {
	switch b {
	case score.BandCritical:
		return s.Critical
	case score.BandHigh:
		return s.High
	case score.BandMedium:
		return s.Medium
	case score.BandLow:
		return s.Low
	case score.BandMinimal:
		return s.Minimal
	}
	return 0
}

// Usage is where a dependency appears inside the organization.
type Usage struct {
	ReposUsing []string `json:"repos_using"`
	UsageCount int      `json:"usage_count"`
	Versions   []string `json:"versions"`
}

// Dependency is one ranked entry of the report.
type Dependency struct {
	Name           string            `json:"name"`
	NormalizedName string            `json:"normalized_name"`
	Ecosystem      string            `json:"ecosystem"`
	SPOFScore      float64           `json:"spof_score"`
	RawScore       float64           `json:"raw_score"`
	Confidence     float64           `json:"confidence"`
	Metrics        metrics.SubScores `json:"metrics"`
	Recommendation string            `json:"recommendation"`
	Usage          Usage             `json:"usage"`
	SourceRepo     string            `json:"github_repo,omitempty"`
	Advisories     []string          `json:"advisories,omitempty"`
}

// Band returns the band of the dependency's score.
func (d Dependency) Band() score.Band { return score.BandFor(d.SPOFScore) }

// Recommendation is the investment advice for one band.
type Recommendation struct {
	Priority     score.Band `json:"priority"`
	Count        int        `json:"count"`
	Dependencies []string   `json:"dependencies"`
	Action       string     `json:"action"`
}

var actions = map[score.Band]string{
	score.BandCritical: "Top investment priorities - these dependencies are critical to your organization and/or " +
		"the broader ecosystem. Consider: direct sponsorship, hiring maintainers, contributing code, " +
		"or establishing ongoing support relationships.",
	score.BandHigh: "Strong investment candidates - significant organizational or ecosystem dependencies. " +
		"Consider: sponsorship programs, contributor time allocation, or participation in " +
		"governance/foundation support.",
	score.BandMedium: "Moderate priority for investment. Consider: community sponsorship programs, one-time " +
		"contributions, or tracking for future support as usage grows.",
}

// Input is everything Build needs from an analysis run.
type Input struct {
	Organization  string
	AnalyzedAt    time.Time
	Repositories  []string
	FailedRepos   []string
	Weights       score.Weights
	DataSources   []string
	Normalization string
	Dependencies  []score.ScoredDependency
	Interrupted   bool
}

// Build assembles a report. Dependencies are ranked by score, highest first.
func Build(in Input) *Report {
	deps := append([]score.ScoredDependency(nil), in.Dependencies...)
	score.SortByScore(deps)

	r := &Report{
		ID:           uuid.NewString(),
		Organization: in.Organization,
		AnalysisDate: in.AnalyzedAt,
		Config: RunConfig{
			ReposAnalyzed:      len(in.Repositories),
			Repositories:       in.Repositories,
			FailedRepositories: in.FailedRepos,
			ScoringWeights:     in.Weights,
			DataSourcesEnabled: in.DataSources,
			Normalization:      in.Normalization,
		},
		Dependencies:    make([]Dependency, 0, len(deps)),
		Recommendations: []Recommendation{},
		Interrupted:     in.Interrupted,
	}
	if r.Config.DataSourcesEnabled == nil {
		r.Config.DataSourcesEnabled = []string{}
	}

	byBand := make(map[score.Band][]string)
	for _, d := range deps {
		entry := newDependency(d)
		r.Dependencies = append(r.Dependencies, entry)
		band := entry.Band()
		byBand[band] = append(byBand[band], entry.Name)
	}

	r.Summary = Summary{
		TotalDependencies: len(deps),
		Critical:          len(byBand[score.BandCritical]),
		High:              len(byBand[score.BandHigh]),
		Medium:            len(byBand[score.BandMedium]),
		Low:               len(byBand[score.BandLow]),
		Minimal:           len(byBand[score.BandMinimal]),
	}

	for _, band := range []score.Band{score.BandCritical, score.BandHigh, score.BandMedium} {
		names := byBand[band]
		if len(names) == 0 {
			continue
		}
		top := names
		if len(top) > recommendationLimit {
			top = top[:recommendationLimit]
		}
		r.Recommendations = append(r.Recommendations, Recommendation{
			Priority:     band,
			Count:        len(names),
			Dependencies: top,
			Action:       actions[band],
		})
	}
	return r
}

func newDependency(d score.ScoredDependency) Dependency {
	out := Dependency{
		Name:           d.Name,
		NormalizedName: d.NormalizedName,
		Ecosystem:      d.Ecosystem,
		SPOFScore:      d.Score,
		RawScore:       d.RawScore,
		Confidence:     d.Confidence,
		Metrics:        d.Metrics,
		Recommendation: d.Recommendation,
		Usage: Usage{
			ReposUsing: d.Raw.Usage.Repositories,
			UsageCount: d.Raw.Usage.Count,
			Versions:   d.Raw.Usage.Versions,
		},
		SourceRepo: d.Raw.ForgeRepo,
	}
	if out.Usage.ReposUsing == nil {
		out.Usage.ReposUsing = []string{}
	}
	if out.Usage.Versions == nil {
		out.Usage.Versions = []string{}
	}
	if d.Raw.Registry != nil {
		out.Advisories = d.Raw.Registry.Advisories
	}
	return out
}

// Filter selects dependencies of a report.
type Filter struct {
	Ecosystem string
	MinScore  float64
}

// Filter returns the dependencies matching f, in report order.
func (r *Report) Filter(f Filter) []Dependency {
	out := make([]Dependency, 0, len(r.Dependencies))
	for _, d := range r.Dependencies {
		if f.Ecosystem != "" && d.Ecosystem != f.Ecosystem {
			continue
		}
		if d.SPOFScore < f.MinScore {
			continue
		}
		out = append(out, d)
	}
	return out
}
