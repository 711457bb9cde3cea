package score

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer rescales a population of composite scores. Implementations keep
// rank order (a < b implies a' <= b'), stay within [0, 100] and return new
// values without touching the input.
type Normalizer interface {
	Name() string
	Normalize(deps []ScoredDependency) []ScoredDependency
}

// NormalizerFor returns the normalizer registered under name. The empty name
// selects min-max.
func NormalizerFor(name string) (Normalizer, error) {
	switch strings.ToLower(name) {
	case "", "minmax", "min-max":
		return MinMax{}, nil
	case "percentile":
		return Percentile{}, nil
	case "none":
		return None{}, nil
	}
	return nil, fmt.Errorf("unknown normalization %q (want minmax, percentile or none)", name)
}

// MinMax stretches the population linearly so the lowest score becomes 0 and
// the highest 100. Populations with fewer than two distinct scores are left
// unchanged.
type MinMax struct{}

func (MinMax) Name() string { return "minmax" }

func (MinMax) Normalize(deps []ScoredDependency) []ScoredDependency {
	out := make([]ScoredDependency, len(deps))
	copy(out, deps)
	if len(out) == 0 {
		return out
	}

	lo, hi := out[0].Score, out[0].Score
	for _, d := range out[1:] {
		lo = min(lo, d.Score)
		hi = max(hi, d.Score)
	}
	if hi == lo {
		return out
	}

	for i := range out {
		out[i] = adjusted(out[i], (out[i].Score-lo)/(hi-lo)*100)
	}
	return out
}

// Percentile replaces each score with its mid-rank percentile: the share of
// the population below it plus half the share equal to it. Ties share a value.
type Percentile struct{}

func (Percentile) Name() string { return "percentile" }

func (Percentile) Normalize(deps []ScoredDependency) []ScoredDependency {
	out := make([]ScoredDependency, len(deps))
	copy(out, deps)

	sorted := make([]float64, len(out))
	for i, d := range out {
		sorted[i] = d.Score
	}
	sort.Float64s(sorted)
	if len(sorted) == 0 || sorted[0] == sorted[len(sorted)-1] {
		return out
	}

	n := float64(len(sorted))
	for i := range out {
		v := out[i].Score
		below := sort.SearchFloat64s(sorted, v)
		equal := sort.Search(len(sorted), func(j int) bool { return sorted[j] > v }) - below
		out[i] = adjusted(out[i], (float64(below)+0.5*float64(equal))/n*100)
	}
	return out
}

// None leaves scores as computed.
type None struct{}

func (None) Name() string { return "none" }

func (None) Normalize(deps []ScoredDependency) []ScoredDependency {
	out := make([]ScoredDependency, len(deps))
	copy(out, deps)
	return out
}

// adjusted replaces the composite score and re-derives the recommendation.
func adjusted(d ScoredDependency, score float64) ScoredDependency {
	d.Score = clamp(round2(score))
	d.Recommendation = Recommend(d.Score, d.SubScores())
	return d
}

// SortByScore orders dependencies by descending score, then by ecosystem and
// name so that ties are stable across runs.
func SortByScore(deps []ScoredDependency) {
	sort.SliceStable(deps, func(i, j int) bool {
		if deps[i].Score != deps[j].Score {
			return deps[i].Score > deps[j].Score
		}
		if deps[i].Ecosystem != deps[j].Ecosystem {
			return deps[i].Ecosystem < deps[j].Ecosystem
		}
		return deps[i].NormalizedName < deps[j].NormalizedName
	})
}
