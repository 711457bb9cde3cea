// Package score combines a dependency's five sub-scores into a composite
// SPOF score (0-100) with a confidence value and a recommendation.
//
// The composite is a weighted sum. Confidence is the fraction of the two
// external sources (forge, registry) that returned usable data, so it is
// always 0, 0.5 or 1.
package score

import (
	"math"

	"k8s.io/utils/clock"

	"github.com/build-flow-labs/spof/internal/spof/identity"
	"github.com/build-flow-labs/spof/internal/spof/metrics"
)

// Usage is the internal footprint of a dependency.
type Usage struct {
	Repositories []string `json:"repositories"`
	Count        int      `json:"count"`
	Versions     []string `json:"versions"`
}

// RawData keeps the inputs a score was computed from.
type RawData struct {
	Usage     Usage                    `json:"usage"`
	ForgeRepo string                   `json:"github_repo,omitempty"`
	Forge     *metrics.ForgeMetrics    `json:"github,omitempty"`
	Registry  *metrics.RegistryMetrics `json:"depsdev,omitempty"`
}

// ScoredDependency is the scoring result for one canonical dependency.
type ScoredDependency struct {
	Name           string  `json:"name"`
	NormalizedName string  `json:"normalized_name"`
	Ecosystem      string  `json:"ecosystem"`
	Score          float64 `json:"spof_score"`
	// RawScore is the composite before population normalization.
	RawScore       float64           `json:"raw_score"`
	Confidence     float64           `json:"confidence"`
	Metrics        metrics.SubScores `json:"metrics"`
	Recommendation string            `json:"recommendation"`
	Raw            RawData           `json:"raw_data"`

	// subScores are the unrounded sub-scores behind Metrics.
	subScores metrics.SubScores
}

// SubScores returns the unrounded sub-scores when known, else the reported ones.
func (d ScoredDependency) SubScores() metrics.SubScores {
	if d.subScores != (metrics.SubScores{}) {
		return d.subScores
	}
	return d.Metrics
}

// Scorer computes composite scores with a fixed weight vector.
type Scorer struct {
	weights     Weights
	synthesizer *metrics.Synthesizer
}

// NewScorer validates the weights and returns a Scorer. The clock drives
// timestamp ages; nil means the wall clock.
func NewScorer(weights Weights, clk clock.PassiveClock) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, synthesizer: metrics.NewSynthesizer(clk)}, nil
}

// Weights returns the weight vector the scorer was built with.
func (s *Scorer) Weights() Weights { return s.weights }

// Score evaluates one aggregated dependency. It never fails: absent bundle
// parts degrade the affected sub-scores and lower the confidence.
func (s *Scorer) Score(dep *identity.Dependency, b metrics.Bundle, totalRepos int) ScoredDependency {
	sub := s.synthesizer.Synthesize(dep, b, totalRepos)
	composite := clamp(round2(s.weights.Apply(sub)))

	out := ScoredDependency{
		Name:           dep.Name,
		NormalizedName: dep.NormalizedName,
		Ecosystem:      dep.Ecosystem,
		Score:          composite,
		RawScore:       composite,
		Confidence:     float64(b.Sources()) / 2,
		Metrics:        sub.Round(round2),
		Recommendation: Recommend(composite, sub),
		Raw: RawData{
			Usage: Usage{
				Repositories: append([]string(nil), dep.Repos...),
				Count:        dep.UsageCount(),
				Versions:     dep.Versions(),
			},
			Forge:    b.Forge,
			Registry: b.Registry,
		},
		subScores: sub,
	}
	if b.Forge != nil {
		out.Raw.ForgeRepo = b.Forge.FullName
	}
	return out
}

// round2 rounds to two decimals, half away from zero. The first rounding
// snaps binary noise so 60.925 is treated as exactly 60.925.
func round2(x float64) float64 {
	return math.Round(math.Round(x*1e6)/1e4) / 100
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
