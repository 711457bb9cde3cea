package score

import (
	"errors"
	"fmt"
	"math"

	"github.com/build-flow-labs/spof/internal/spof/metrics"
)

// ErrInvalidWeights is returned for weight vectors that cannot be used.
var ErrInvalidWeights = errors.New("invalid scoring weights")

// Accepted range for the sum of the weights.
const (
	minWeightSum = 0.99
	maxWeightSum = 1.01
)

// Weights sets the contribution of each sub-score to the composite.
type Weights struct {
	InternalCriticality float64 `yaml:"internal_criticality" json:"internal_criticality"`
	EcosystemPopularity float64 `yaml:"ecosystem_popularity" json:"ecosystem_popularity"`
	MaintainerRisk      float64 `yaml:"maintainer_risk" json:"maintainer_risk"`
	SecurityHealth      float64 `yaml:"security_health" json:"security_health"`
	UpstreamActivity    float64 `yaml:"upstream_activity" json:"upstream_activity"`
}

// DefaultWeights returns the stock weight vector.
func DefaultWeights() Weights {
	return Weights{
		InternalCriticality: 0.30,
		EcosystemPopularity: 0.25,
		MaintainerRisk:      0.20,
		SecurityHealth:      0.15,
		UpstreamActivity:    0.10,
	}
}

func (w Weights) asSubScores() metrics.SubScores {
	return metrics.SubScores(w)
}

// Get returns the weight of the named sub-score.
func (w Weights) Get(n metrics.Name) float64 {
	return w.asSubScores().Get(n)
}

// Sum adds up all weights.
func (w Weights) Sum() float64 {
	var sum float64
	for _, n := range metrics.Names {
		sum += w.Get(n)
	}
	return sum
}

// Validate checks that no weight is negative and that they sum to 1.
func (w Weights) Validate() error {
	for _, n := range metrics.Names {
		if v := w.Get(n); v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidWeights, n, v)
		}
	}
	if sum := w.Sum(); sum < minWeightSum || sum > maxWeightSum {
		return fmt.Errorf("%w: weights must sum to 1.0, got %.4f", ErrInvalidWeights, sum)
	}
	return nil
}

// Apply returns the weighted sum of the sub-scores.
func (w Weights) Apply(s metrics.SubScores) float64 {
	var total float64
	for _, n := range metrics.Names {
		total += w.Get(n) * s.Get(n)
	}
	return total
}
