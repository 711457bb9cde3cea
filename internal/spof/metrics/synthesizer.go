package metrics

import (
	"k8s.io/utils/clock"

	"github.com/build-flow-labs/spof/internal/spof/identity"
)

// Synthesizer derives sub-scores against a clock.
type Synthesizer struct {
	clock clock.PassiveClock
}

// NewSynthesizer returns a Synthesizer reading time from clk; nil means the
// wall clock.
func NewSynthesizer(clk clock.PassiveClock) *Synthesizer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Synthesizer{clock: clk}
}

// Synthesize computes the five sub-scores of a dependency used in
// dep.UsageCount() of totalRepos repositories.
func (s *Synthesizer) Synthesize(dep *identity.Dependency, b Bundle, totalRepos int) SubScores {
	return SubScores{
		InternalCriticality: InternalCriticality(dep.UsageCount(), totalRepos),
		EcosystemPopularity: EcosystemPopularity(b.Forge, b.Registry),
		MaintainerRisk:      MaintainerRisk(b.Forge),
		SecurityHealth:      SecurityHealth(b.Forge, b.Registry),
		UpstreamActivity:    UpstreamActivity(b.Forge, s.clock.Now()),
	}
}
