package score

import (
	"github.com/build-flow-labs/spof/internal/spof/metrics"
)

// Band is a coarse SPOF risk level.
type Band string

const (
	BandCritical Band = "critical"
	BandHigh     Band = "high"
	BandMedium   Band = "medium"
	BandLow      Band = "low"
	BandMinimal  Band = "minimal"
)

// Bands lists the levels from highest to lowest.
var Bands = []Band{BandCritical, BandHigh, BandMedium, BandLow, BandMinimal}

// BandFor returns the band a composite score falls in.
func BandFor(score float64) Band {
	switch {
	case score >= 80:
		return BandCritical
	case score >= 60:
		return BandHigh
	case score >= 40:
		return BandMedium
	case score >= 20:
		return BandLow
	default:
		return BandMinimal
	}
}

// Recommend picks the recommendation text for a composite score, using the
// sub-scores to break out the critical, high and minimal bands.
func Recommend(score float64, s metrics.SubScores) string {
	switch BandFor(score) {
	case BandCritical:
		if s.MaintainerRisk > 70 {
			return "CRITICAL - High internal usage with maintenance concerns. Consider contributing or sponsoring."
		}
		return "CRITICAL - Monitor closely, very high impact to organization."
	case BandHigh:
		if s.InternalCriticality > 70 {
			return "HIGH - Significant internal dependency. Monitor for updates and security issues."
		}
		return "HIGH - Consider investment to ensure long-term sustainability."
	case BandMedium:
		return "MEDIUM - Moderate impact. Monitor periodically."
	case BandLow:
		return "LOW - Limited impact. Standard monitoring sufficient."
	default:
		if s.EcosystemPopularity > 80 {
			return "MINIMAL - Healthy, well-maintained project."
		}
		return "MINIMAL - Low impact to organization."
	}
}
