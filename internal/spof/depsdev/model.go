package depsdev

type VersionKey struct {
	System  string `json:"system"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type PackageVersion struct {
	VersionKey  VersionKey `json:"versionKey"`
	PublishedAt string     `json:"publishedAt,omitempty"`
	IsDefault   bool       `json:"isDefault"`
}

// Package is the GetPackage response.
type Package struct {
	PackageKey struct {
		System string `json:"system"`
		Name   string `json:"name"`
	} `json:"packageKey"`
	Versions []PackageVersion `json:"versions"`
}

type AdvisoryKey struct {
	ID string `json:"id"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type ProjectKey struct {
	ID string `json:"id"`
}

type RelatedProject struct {
	ProjectKey         ProjectKey `json:"projectKey"`
	RelationType       string     `json:"relationType"`
	RelationProvenance string     `json:"relationProvenance,omitempty"`
}

// Version is the GetVersion response.
type Version struct {
	VersionKey      VersionKey       `json:"versionKey"`
	IsDefault       bool             `json:"isDefault"`
	Licenses        []string         `json:"licenses,omitempty"`
	AdvisoryKeys    []AdvisoryKey    `json:"advisoryKeys"`
	Links           []Link           `json:"links"`
	RelatedProjects []RelatedProject `json:"relatedProjects"`
}

// Dependents is the GetDependents response.
type Dependents struct {
	DependentCount         int `json:"dependentCount"`
	DirectDependentCount   int `json:"directDependentCount"`
	IndirectDependentCount int `json:"indirectDependentCount"`
}
