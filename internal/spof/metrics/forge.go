package metrics

import (
	"regexp"
	"strings"

	"github.com/build-flow-labs/spof/internal/spof/identity"
)

// OwnerRepo identifies a repository on the code forge.
type OwnerRepo struct {
	Owner string
	Repo  string
}

func (o OwnerRepo) String() string {
	return o.Owner + "/" + o.Repo
}

// ParseOwnerRepo splits "owner/repo".
func ParseOwnerRepo(s string) (OwnerRepo, bool) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return OwnerRepo{}, false
	}
	return OwnerRepo{Owner: owner, Repo: repo}, true
}

const forgeHost = "github.com"

// moduleEcosystems embed the forge host in package names.
var moduleEcosystems = map[string]bool{
	"go":     true,
	"golang": true,
}

var forgeLinkRe = regexp.MustCompile(`github\.com[:/]([^/\s]+)/([^/\s?#]+)`)

// InferForgeRepo proposes the forge repository hosting a package. The module
// path is tried first, then the registry's cross-reference links.
func InferForgeRepo(key identity.Key, registry *RegistryMetrics) (OwnerRepo, bool) {
	if or, ok := fromModulePath(key); ok {
		return or, true
	}
	if registry == nil {
		return OwnerRepo{}, false
	}
	for _, link := range registry.Links.All() {
		if m := forgeLinkRe.FindStringSubmatch(link); m != nil {
			repo := strings.TrimSuffix(m[2], ".git")
			if repo != "" {
				return OwnerRepo{Owner: m[1], Repo: repo}, true
			}
		}
	}
	return OwnerRepo{}, false
}

func fromModulePath(key identity.Key) (OwnerRepo, bool) {
	if !moduleEcosystems[strings.ToLower(key.Ecosystem)] {
		return OwnerRepo{}, false
	}
	rest, ok := strings.CutPrefix(key.Name, forgeHost+"/")
	if !ok {
		return OwnerRepo{}, false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return OwnerRepo{}, false
	}
	return OwnerRepo{Owner: parts[0], Repo: parts[1]}, true
}
