// Package metrics turns raw forge and registry data into the five 0-100
// sub-scores that make up a dependency's SPOF score.
//
// Every sub-score function is total: missing data lowers or fixes a single
// sub-score and never fails the computation.
package metrics

// ForgeMetrics is what the code forge reports about a package's source
// repository.
type ForgeMetrics struct {
	FullName     string `json:"full_name"`
	Stars        int    `json:"stars"`
	Forks        int    `json:"forks"`
	Contributors int    `json:"contributors"`
	OpenIssues   int    `json:"open_issues"`
	OrgBacked    bool   `json:"org_backed"`
	Archived     bool   `json:"archived,omitempty"`
	Language     string `json:"language,omitempty"`
	// LastCommit and LastRelease are ISO-8601 timestamps, empty when unknown.
	LastCommit  string `json:"last_commit_date,omitempty"`
	LastRelease string `json:"last_release_date,omitempty"`
}

// Links are the cross references a registry publishes for a package.
type Links struct {
	Repository    string `json:"repository,omitempty"`
	Homepage      string `json:"homepage,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// All returns the non-empty links, repository first.
func (l Links) All() []string {
	var out []string
	for _, s := range []string{l.Repository, l.Homepage, l.Documentation} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RegistryMetrics is what the package-metadata service reports.
type RegistryMetrics struct {
	// DataAvailable is false when the service was queried and knew nothing
	// about the package.
	DataAvailable  bool   `json:"data_available"`
	DefaultVersion string `json:"default_version,omitempty"`
	// DependentCount counts packages depending on the default version,
	// directly or transitively.
	DependentCount       int      `json:"dependent_count"`
	DirectDependentCount int      `json:"direct_dependent_count"`
	AdvisoryCount        int      `json:"advisory_count"`
	Advisories           []string `json:"advisories,omitempty"`
	Links                Links    `json:"links"`
}

// Bundle groups the external views of one dependency. A nil field means the
// source was disabled or returned nothing.
type Bundle struct {
	Forge    *ForgeMetrics    `json:"github,omitempty"`
	Registry *RegistryMetrics `json:"depsdev,omitempty"`
}

// Sources counts the sources that contributed usable data.
func (b Bundle) Sources() int {
	n := 0
	if b.Forge != nil {
		n++
	}
	if b.Registry != nil && b.Registry.DataAvailable {
		n++
	}
	return n
}

// Name identifies a sub-score.
type Name string

const (
	InternalCriticalityName Name = "internal_criticality"
	EcosystemPopularityName Name = "ecosystem_popularity"
	MaintainerRiskName      Name = "maintainer_risk"
	SecurityHealthName      Name = "security_health"
	UpstreamActivityName    Name = "upstream_activity"
)

// Names lists the sub-scores in report order.
var Names = []Name{
	InternalCriticalityName,
	EcosystemPopularityName,
	MaintainerRiskName,
	SecurityHealthName,
	UpstreamActivityName,
}

// SubScores holds the five sub-scores of one dependency, each in [0, 100].
type SubScores struct {
	InternalCriticality float64 `json:"internal_criticality"`
	EcosystemPopularity float64 `json:"ecosystem_popularity"`
	MaintainerRisk      float64 `json:"maintainer_risk"`
	SecurityHealth      float64 `json:"security_health"`
	UpstreamActivity    float64 `json:"upstream_activity"`
}

// Get returns the sub-score with the given name, or 0 for an unknown name.
func (s SubScores) Get(n Name) float64 {
	switch n {
	case InternalCriticalityName:
		return s.InternalCriticality
	case EcosystemPopularityName:
		return s.EcosystemPopularity
	case MaintainerRiskName:
		return s.MaintainerRisk
	case SecurityHealthName:
		return s.SecurityHealth
	case UpstreamActivityName:
		return s.UpstreamActivity
	}
	return 0
}

// Map renders the sub-scores keyed by name.
func (s SubScores) Map() map[Name]float64 {
	m := make(map[Name]float64, len(Names))
	for _, n := range Names {
		m[n] = s.Get(n)
	}
	return m
}

// Round returns a copy with every sub-score rounded with fn.
func (s SubScores) Round(fn func(float64) float64) SubScores {
	return SubScores{
		InternalCriticality: fn(s.InternalCriticality),
		EcosystemPopularity: fn(s.EcosystemPopularity),
		MaintainerRisk:      fn(s.MaintainerRisk),
		SecurityHealth:      fn(s.SecurityHealth),
		UpstreamActivity:    fn(s.UpstreamActivity),
	}
}
