// Package sbom collects dependency occurrences from repositories.
// It reads CycloneDX and SPDX documents produced by syft, and falls back to
// parsing dependency manifests directly when syft is not available.
package sbom

import (
	"fmt"
	"strings"
)

// UnknownEcosystem is reported for occurrences without a usable package URL.
const UnknownEcosystem = "unknown"

// UnknownVersion is reported when a component does not declare a version.
const UnknownVersion = "unknown"

// Relation describes how a repository depends on a package.
type Relation string

const (
	RelationDirect   Relation = "direct"
	RelationIndirect Relation = "indirect"
	RelationUnknown  Relation = "unknown"
)

// Dependency is one sighting of a package in one repository.
type Dependency struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Ecosystem string   `json:"ecosystem"`
	PURL      string   `json:"purl,omitempty"`
	Relation  Relation `json:"relation"`
}

// Format is the SBOM document format requested from syft.
type Format string

const (
	// FormatCycloneDXJSON is syft's cyclonedx-json output.
	FormatCycloneDXJSON Format = "cyclonedx-json"
	// FormatSPDXJSON is syft's spdx-json output.
	FormatSPDXJSON Format = "spdx-json"
)

// ParseFormat converts a string to a Format type.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "cyclonedx-json", "cyclonedx", "":
		return FormatCycloneDXJSON, nil
	case "spdx-json", "spdx":
		return FormatSPDXJSON, nil
	default:
		return "", fmt.Errorf("unknown SBOM format: %s", s)
	}
}

// Parse decodes an SBOM document of the given format.
func Parse(format Format, data []byte) ([]Dependency, error) {
	switch format {
	case FormatCycloneDXJSON:
		return ParseCycloneDX(data)
	case FormatSPDXJSON:
		return ParseSPDX(data)
	default:
		return nil, fmt.Errorf("unknown SBOM format: %s", format)
	}
}

// EcosystemFromPURL returns the package type of a package URL, lower-cased.
//
//	pkg:npm/@babel/core@7.12.3                  -> npm
//	pkg:pypi/requests@2.28.0                    -> pypi
//	pkg:maven/org.springframework/spring-core@5 -> maven
//
// Empty or malformed URLs yield UnknownEcosystem.
func EcosystemFromPURL(purl string) string {
	if !strings.HasPrefix(purl, "pkg:") {
		return UnknownEcosystem
	}
	typ, _, _ := strings.Cut(strings.TrimPrefix(purl, "pkg:"), "/")
	if typ == "" {
		return UnknownEcosystem
	}
	return strings.ToLower(typ)
}

// newDependency builds an occurrence, filling in defaults. It reports false
// for components without a name, which carry no identity.
func newDependency(name, version, purl string, rel Relation) (Dependency, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Dependency{}, false
	}
	if version == "" {
		version = UnknownVersion
	}
	if rel == "" {
		rel = RelationUnknown
	}
	return Dependency{
		Name:      name,
		Version:   version,
		Ecosystem: EcosystemFromPURL(purl),
		PURL:      purl,
		Relation:  rel,
	}, true
}
