package identity

import (
	"sort"

	goversion "github.com/hashicorp/go-version"

	"github.com/build-flow-labs/spof/sbom"
)

// Dependency is every sighting of one canonical package across the analyzed
// repositories.
type Dependency struct {
	// Name is the raw name of the first sighting.
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
	Ecosystem      string `json:"ecosystem"`
	PURL           string `json:"purl,omitempty"`
	// Repos lists the repositories using the package in first-sighting order.
	Repos []string `json:"repositories"`

	versions map[string]struct{}
	repoSet  map[string]struct{}
}

// Key returns the canonical identity of the dependency.
func (d *Dependency) Key() Key {
	return Key{Ecosystem: d.Ecosystem, Name: d.NormalizedName}
}

// UsageCount is the number of distinct repositories using the dependency.
func (d *Dependency) UsageCount() int {
	return len(d.Repos)
}

// Versions returns the distinct observed versions, oldest first. Strings that
// are not valid versions sort after the parseable ones, lexically.
func (d *Dependency) Versions() []string {
	out := make([]string, 0, len(d.versions))
	for v := range d.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		vi, erri := goversion.NewVersion(out[i])
		vj, errj := goversion.NewVersion(out[j])
		switch {
		case erri == nil && errj == nil:
			if c := vi.Compare(vj); c != 0 {
				return c < 0
			}
			return out[i] < out[j]
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func (d *Dependency) add(repo, version string) {
	d.versions[version] = struct{}{}
	if _, ok := d.repoSet[repo]; ok {
		return
	}
	d.repoSet[repo] = struct{}{}
	d.Repos = append(d.Repos, repo)
}

// Aggregator groups occurrences by canonical identity. It is not safe for
// concurrent use.
type Aggregator struct {
	byKey   map[Key]*Dependency
	order   []Key
	dropped int
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byKey: make(map[Key]*Dependency)}
}

// Add records the occurrences found in one repository. Occurrences without a
// name are dropped.
func (a *Aggregator) Add(repo string, occurrences []sbom.Dependency) {
	for _, occ := range occurrences {
		if occ.Name == "" {
			a.dropped++
			continue
		}
		key := KeyFor(occ.Ecosystem, occ.Name)
		dep, ok := a.byKey[key]
		if !ok {
			dep = &Dependency{
				Name:           occ.Name,
				NormalizedName: key.Name,
				Ecosystem:      key.Ecosystem,
				PURL:           occ.PURL,
				versions:       make(map[string]struct{}),
				repoSet:        make(map[string]struct{}),
			}
			a.byKey[key] = dep
			a.order = append(a.order, key)
		}
		version := occ.Version
		if version == "" {
			version = sbom.UnknownVersion
		}
		dep.add(repo, version)
	}
}

// Dependencies returns the aggregated records in first-sighting order.
func (a *Aggregator) Dependencies() []*Dependency {
	out := make([]*Dependency, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, a.byKey[k])
	}
	return out
}

// Lookup returns the record for a canonical key.
func (a *Aggregator) Lookup(key Key) (*Dependency, bool) {
	d, ok := a.byKey[key]
	return d, ok
}

// Len is the number of distinct canonical dependencies.
func (a *Aggregator) Len() int { return len(a.order) }

// Dropped is the number of nameless occurrences discarded so far.
func (a *Aggregator) Dropped() int { return a.dropped }

// Aggregate builds the canonical records for a whole organization. Repositories
// are visited in sorted order so the result does not depend on map iteration.
func Aggregate(byRepo map[string][]sbom.Dependency) map[Key]*Dependency {
	repos := make([]string, 0, len(byRepo))
	for r := range byRepo {
		repos = append(repos, r)
	}
	sort.Strings(repos)

	a := NewAggregator()
	for _, r := range repos {
		a.Add(r, byRepo[r])
	}
	return a.byKey
}
