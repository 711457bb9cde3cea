package sbom

import (
	"encoding/json"
	"fmt"
)

// SPDX 2.3 JSON structures

// SPDXDocument represents an SPDX 2.3 document.
type SPDXDocument struct {
	SPDXID            string             `json:"SPDXID"`
	SPDXVersion       string             `json:"spdxVersion"`
	Name              string             `json:"name"`
	DocumentDescribes []string           `json:"documentDescribes,omitempty"`
	Packages          []SPDXPackage      `json:"packages"`
	Relationships     []SPDXRelationship `json:"relationships,omitempty"`
}

// SPDXPackage represents a software package in SPDX format.
type SPDXPackage struct {
	SPDXID       string            `json:"SPDXID"`
	Name         string            `json:"name"`
	VersionInfo  string            `json:"versionInfo,omitempty"`
	ExternalRefs []SPDXExternalRef `json:"externalRefs,omitempty"`
}

// SPDXExternalRef represents an external reference (like PURL).
type SPDXExternalRef struct {
	ReferenceCategory string `json:"referenceCategory"`
	ReferenceType     string `json:"referenceType"`
	ReferenceLocator  string `json:"referenceLocator"`
}

// SPDXRelationship represents a relationship between SPDX elements.
type SPDXRelationship struct {
	SPDXElementID      string `json:"spdxElementId"`
	RelationshipType   string `json:"relationshipType"`
	RelatedSPDXElement string `json:"relatedSpdxElement"`
}

// PURL returns the package URL external reference, if any.
func (p SPDXPackage) PURL() string {
	for _, ref := range p.ExternalRefs {
		if ref.ReferenceType == "purl" {
			return ref.ReferenceLocator
		}
	}
	return ""
}

// ParseSPDX extracts dependency occurrences from an SPDX JSON document.
// The described root package is skipped; packages without a purl are kept
// under the unknown ecosystem.
func ParseSPDX(data []byte) ([]Dependency, error) {
	var doc SPDXDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing SPDX JSON: %w", err)
	}

	roots := make(map[string]bool)
	for _, id := range doc.DocumentDescribes {
		roots[id] = true
	}
	for _, r := range doc.Relationships {
		if r.RelationshipType == "DESCRIBES" && r.SPDXElementID == doc.SPDXID {
			roots[r.RelatedSPDXElement] = true
		}
	}

	deps := make([]Dependency, 0, len(doc.Packages))
	for _, p := range doc.Packages {
		if roots[p.SPDXID] {
			continue
		}
		if dep, ok := newDependency(p.Name, p.VersionInfo, p.PURL(), RelationUnknown); ok {
			deps = append(deps, dep)
		}
	}
	return deps, nil
}
