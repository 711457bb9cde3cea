package sbom

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ManifestParser extracts occurrences from one kind of dependency manifest.
// Manifest parsing is the fallback used when syft is not installed; it only
// sees what a repository declares, never the resolved transitive graph.
type ManifestParser interface {
	// Parse extracts dependencies from the given file content.
	Parse(content string) ([]Dependency, error)
	// FilePatterns returns the file names this parser handles.
	FilePatterns() []string
}

var manifestParsers = []ManifestParser{
	&GoModParser{},
	&PackageJSONParser{},
	&RequirementsTxtParser{},
}

// ManifestFiles lists every file name a manifest parser understands.
func ManifestFiles() []string {
	var files []string
	for _, p := range manifestParsers {
		files = append(files, p.FilePatterns()...)
	}
	return files
}

// ParserForFile returns the parser for the given filename, or nil.
func ParserForFile(filename string) ManifestParser {
	for _, parser := range manifestParsers {
		for _, pattern := range parser.FilePatterns() {
			if matchPattern(filename, pattern) {
				return parser
			}
		}
	}
	return nil
}

// ParseManifests parses a set of manifest files keyed by path.
// Files without a parser are ignored; a parse failure aborts.
func ParseManifests(files map[string]string) ([]Dependency, error) {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var deps []Dependency
	for _, path := range paths {
		parser := ParserForFile(path)
		if parser == nil {
			continue
		}
		found, err := parser.Parse(files[path])
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		deps = append(deps, found...)
	}
	return deps, nil
}

func matchPattern(filename, pattern string) bool {
	return filename == pattern || strings.HasSuffix(filename, "/"+pattern)
}

// GoModParser parses go.mod files.
type GoModParser struct{}

var (
	goRequireRe  = regexp.MustCompile(`^(\S+)\s+(v[0-9][^\s]*)`)
	goIndirectRe = regexp.MustCompile(`//\s*indirect`)
)

// FilePatterns returns the file patterns for go.mod files.
func (p *GoModParser) FilePatterns() []string {
	return []string{"go.mod"}
}

// Parse extracts require directives from a go.mod file.
func (p *GoModParser) Parse(content string) ([]Dependency, error) {
	var deps []Dependency

	scanner := bufio.NewScanner(strings.NewReader(content))
	inBlock := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "//"):
			continue
		case line == "require (" || line == "require(":
			inBlock = true
			continue
		case inBlock && line == ")":
			inBlock = false
			continue
		}

		req := line
		if !inBlock {
			if !strings.HasPrefix(line, "require ") {
				continue
			}
			req = strings.TrimSpace(strings.TrimPrefix(line, "require "))
		}

		m := goRequireRe.FindStringSubmatch(req)
		if m == nil {
			continue
		}
		rel := RelationDirect
		if goIndirectRe.MatchString(req) {
			rel = RelationIndirect
		}
		if dep, ok := newDependency(m[1], m[2], "pkg:golang/"+m[1]+"@"+m[2], rel); ok {
			deps = append(deps, dep)
		}
	}

	return deps, scanner.Err()
}

// PackageJSONParser parses npm package.json files.
type PackageJSONParser struct{}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// FilePatterns returns the file patterns for package.json files.
func (p *PackageJSONParser) FilePatterns() []string {
	return []string{"package.json"}
}

// Parse extracts runtime and dev dependencies from a package.json file.
func (p *PackageJSONParser) Parse(content string) ([]Dependency, error) {
	var pkg packageJSON
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return nil, err
	}

	var deps []Dependency
	for _, section := range []map[string]string{pkg.Dependencies, pkg.DevDependencies} {
		names := make([]string, 0, len(section))
		for name := range section {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			version := cleanNpmVersion(section[name])
			if dep, ok := newDependency(name, version, "pkg:npm/"+name+"@"+version, RelationDirect); ok {
				deps = append(deps, dep)
			}
		}
	}
	return deps, nil
}

// cleanNpmVersion strips range operators: "^4.18.2" -> "4.18.2".
func cleanNpmVersion(version string) string {
	version = strings.TrimSpace(version)
	version = strings.TrimLeft(version, "^~>=< ")
	return strings.ReplaceAll(version, ".x", ".0")
}

// RequirementsTxtParser parses Python requirements files.
type RequirementsTxtParser struct{}

var requirementRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(?:\[[^\]]*\])?\s*(?:[=<>!~]=?\s*([0-9][0-9A-Za-z.*+!-]*))?`)

// FilePatterns returns the file patterns for Python requirement files.
func (p *RequirementsTxtParser) FilePatterns() []string {
	return []string{"requirements.txt", "requirements-dev.txt", "requirements-test.txt"}
}

// Parse extracts pinned or constrained packages from a requirements file.
func (p *RequirementsTxtParser) Parse(content string) ([]Dependency, error) {
	var deps []Dependency

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		line, _, _ = strings.Cut(line, ";")
		line, _, _ = strings.Cut(line, " #")

		m := requirementRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		purl := "pkg:pypi/" + m[1]
		if m[2] != "" {
			purl += "@" + m[2]
		}
		if dep, ok := newDependency(m[1], m[2], purl, RelationDirect); ok {
			deps = append(deps, dep)
		}
	}

	return deps, scanner.Err()
}
