package sbom

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CycloneDX JSON structures, limited to the fields syft emits that we read.

// CDXBom represents a CycloneDX Bill of Materials.
type CDXBom struct {
	BomFormat    string          `json:"bomFormat"`
	SpecVersion  string          `json:"specVersion"`
	SerialNumber string          `json:"serialNumber,omitempty"`
	Metadata     *CDXMetadata    `json:"metadata,omitempty"`
	Components   []CDXComponent  `json:"components"`
	Dependencies []CDXDependency `json:"dependencies,omitempty"`
}

// CDXMetadata contains metadata about the SBOM.
type CDXMetadata struct {
	Timestamp string        `json:"timestamp,omitempty"`
	Component *CDXComponent `json:"component,omitempty"`
}

// CDXComponent represents a software component (dependency).
type CDXComponent struct {
	Type    string `json:"type"`
	BomRef  string `json:"bom-ref,omitempty"`
	Group   string `json:"group,omitempty"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	PURL    string `json:"purl,omitempty"`
}

// CDXDependency is one node of the dependency graph.
type CDXDependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// ParseCycloneDX extracts dependency occurrences from a CycloneDX JSON document.
//
// Components without a name are dropped. When the document carries a
// dependency graph rooted at the metadata component, components referenced
// by the root are direct and all others indirect; otherwise the relation is
// unknown.
func ParseCycloneDX(data []byte) ([]Dependency, error) {
	var bom CDXBom
	if err := json.Unmarshal(data, &bom); err != nil {
		return nil, fmt.Errorf("parsing CycloneDX JSON: %w", err)
	}

	direct, graphKnown := cdxDirectRefs(&bom)

	deps := make([]Dependency, 0, len(bom.Components))
	for _, c := range bom.Components {
		rel := RelationUnknown
		if graphKnown {
			rel = RelationIndirect
			if direct[c.BomRef] {
				rel = RelationDirect
			}
		}
		if dep, ok := newDependency(c.qualifiedName(), c.Version, c.PURL, rel); ok {
			deps = append(deps, dep)
		}
	}
	return deps, nil
}

// qualifiedName joins the group into the name the way the ecosystem's
// registry spells it: group:artifact for Maven, @scope/name for npm.
func (c CDXComponent) qualifiedName() string {
	if c.Group == "" || c.Name == "" {
		return c.Name
	}
	switch EcosystemFromPURL(c.PURL) {
	case "maven":
		return c.Group + ":" + c.Name
	case "npm":
		if !strings.HasPrefix(c.Name, "@") {
			return c.Group + "/" + c.Name
		}
	}
	return c.Name
}

func cdxDirectRefs(bom *CDXBom) (map[string]bool, bool) {
	if bom.Metadata == nil || bom.Metadata.Component == nil || bom.Metadata.Component.BomRef == "" {
		return nil, false
	}
	root := bom.Metadata.Component.BomRef
	for _, d := range bom.Dependencies {
		if d.Ref != root {
			continue
		}
		direct := make(map[string]bool, len(d.DependsOn))
		for _, ref := range d.DependsOn {
			direct[ref] = true
		}
		return direct, true
	}
	return nil, false
}
