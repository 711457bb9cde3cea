package metrics

import (
	"math"
	"time"
)

// InternalCriticality is the share of analyzed repositories that use the
// dependency, as a percentage.
func InternalCriticality(usage, totalRepos int) float64 {
	if totalRepos <= 0 {
		return 0
	}
	return clamp(math.Min(100, 100*float64(usage)/float64(totalRepos)))
}

// logScore maps a count onto 0-100 where 10^4 and above is 100.
func logScore(x int) float64 {
	return math.Min(100, math.Log10(math.Max(1, float64(x)))/4*100)
}

// EcosystemPopularity log-scales repository stars and registry dependents,
// averaging them when both are known.
func EcosystemPopularity(forge *ForgeMetrics, registry *RegistryMetrics) float64 {
	var signals []float64
	if forge != nil && forge.Stars > 0 {
		signals = append(signals, logScore(forge.Stars))
	}
	if registry != nil && registry.DataAvailable && registry.DependentCount > 0 {
		signals = append(signals, logScore(registry.DependentCount))
	}

	switch len(signals) {
	case 0:
		return 0
	case 1:
		return clamp(signals[0])
	default:
		return clamp(0.5*signals[0] + 0.5*signals[1])
	}
}

// MaintainerRisk grows as the contributor base shrinks. Organizational backing
// takes 30% off; unknown maintainership is medium risk.
func MaintainerRisk(forge *ForgeMetrics) float64 {
	if forge == nil {
		return 50
	}

	var risk float64
	switch c := forge.Contributors; {
	case c >= 20:
		risk = 20
	case c >= 10:
		risk = 30
	case c >= 5:
		risk = 50
	case c >= 2:
		risk = 70
	default:
		risk = 90
	}

	if forge.OrgBacked {
		risk *= 0.7
	}
	return clamp(risk)
}

// SecurityHealth starts at 100 and deducts for known advisories and for the
// open issue backlog.
func SecurityHealth(forge *ForgeMetrics, registry *RegistryMetrics) float64 {
	score := 100.0
	if registry != nil && registry.DataAvailable {
		score -= math.Min(60, float64(registry.AdvisoryCount)*15)
	}
	if forge != nil {
		// Roughly 5% of open issues are assumed to be security relevant.
		score -= math.Min(20, float64(forge.OpenIssues)*0.05*2)
	}
	return clamp(score)
}

// UpstreamActivity scores how recently the project committed and released.
// Unparseable timestamps are ignored individually.
func UpstreamActivity(forge *ForgeMetrics, now time.Time) float64 {
	if forge == nil {
		return 0
	}

	var total float64
	n := 0
	if t, ok := ParseTimestamp(forge.LastCommit); ok {
		total += commitRecency(ageDays(now, t))
		n++
	}
	if t, ok := ParseTimestamp(forge.LastRelease); ok {
		total += releaseRecency(ageDays(now, t))
		n++
	}

	if n == 0 {
		return 50
	}
	return clamp(total / float64(n))
}

func commitRecency(days float64) float64 {
	switch {
	case days < 30:
		return 100
	case days < 90:
		return 66
	case days < 180:
		return 33
	default:
		return math.Max(0, 100-days/365*100)
	}
}

func releaseRecency(days float64) float64 {
	switch {
	case days < 90:
		return 100
	case days < 180:
		return 66
	case days < 365:
		return 33
	default:
		return math.Max(0, 100-days/730*100)
	}
}

// ageDays is the age in whole days.
func ageDays(now, t time.Time) float64 {
	return math.Floor(now.Sub(t).Hours() / 24)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 forms returned by forge APIs. Timestamps
// without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
