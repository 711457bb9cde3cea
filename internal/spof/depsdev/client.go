// Package depsdev fetches package popularity, advisories and cross
// references from the deps.dev v3alpha API.
package depsdev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/build-flow-labs/spof/internal/spof/identity"
	"github.com/build-flow-labs/spof/internal/spof/metrics"
)

// DefaultBaseURL is the public deps.dev API.
const DefaultBaseURL = "https://api.deps.dev/v3alpha"

const userAgent = "spof/0.1"

// systems maps ecosystem tags onto deps.dev package systems.
var systems = map[string]string{
	"npm":    "NPM",
	"pypi":   "PYPI",
	"maven":  "MAVEN",
	"cargo":  "CARGO",
	"go":     "GO",
	"golang": "GO",
	"nuget":  "NUGET",
	"gem":    "RUBYGEMS",
}

// System returns the deps.dev system for an ecosystem tag.
func System(ecosystem string) (string, bool) {
	s, ok := systems[strings.ToLower(ecosystem)]
	return s, ok
}

var errNotFound = errors.New("not found")

// Cache stores responses between runs.
type Cache interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

type DepsDevClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Cache      Cache
	Logger     *slog.Logger
}

// NewClient returns a client for the public API. cache may be nil.
func NewClient(cache Cache, logger *slog.Logger) *DepsDevClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepsDevClient{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Cache:      cache,
		Logger:     logger,
	}
}

func (c *DepsDevClient) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// PackageMetrics returns registry metrics for the default version of a
// package. Unknown packages and unsupported ecosystems yield metrics with
// DataAvailable false and no error.
//
// name is the package name as declared. Responses are cached under the
// canonical name, so spellings of one package share an entry.
func (c *DepsDevClient) PackageMetrics(ctx context.Context, ecosystem, name string) (*metrics.RegistryMetrics, error) {
	key := fmt.Sprintf("depsdev:%s:%s", ecosystem, identity.Normalize(ecosystem, name))
	if c.Cache != nil {
		var cached metrics.RegistryMetrics
		if ok, err := c.Cache.Get(key, &cached); err != nil {
			c.logger().Warn("reading cached deps.dev data", "key", key, "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	m, err := c.fetchMetrics(ctx, ecosystem, name)
	if err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if err := c.Cache.Set(key, m); err != nil {
			c.logger().Warn("caching deps.dev data", "key", key, "error", err)
		}
	}
	return m, nil
}

func (c *DepsDevClient) fetchMetrics(ctx context.Context, ecosystem, name string) (*metrics.RegistryMetrics, error) {
	m := &metrics.RegistryMetrics{}

	system, ok := System(ecosystem)
	if !ok {
		c.logger().Debug("ecosystem not supported by deps.dev", "ecosystem", ecosystem, "package", name)
		return m, nil
	}
	name = queryName(system, ecosystem, name)

	pkg, err := c.GetPackage(ctx, system, name)
	if errors.Is(err, errNotFound) {
		c.logger().Debug("package not found in deps.dev", "system", system, "package", name)
		return m, nil
	}
	if err != nil {
		return nil, err
	}

	pv, ok := defaultVersion(pkg)
	if !ok {
		return m, nil
	}
	m.DataAvailable = true
	m.DefaultVersion = pv.VersionKey.Version

	v, err := c.GetVersion(ctx, system, name, pv.VersionKey.Version)
	switch {
	case errors.Is(err, errNotFound):
		return m, nil
	case err != nil:
		return nil, err
	}
	for _, a := range v.AdvisoryKeys {
		m.Advisories = append(m.Advisories, a.ID)
	}
	m.AdvisoryCount = len(v.AdvisoryKeys)
	m.Links = links(v)

	d, err := c.GetDependents(ctx, system, name, pv.VersionKey.Version)
	switch {
	case errors.Is(err, errNotFound):
	case err != nil:
		return nil, err
	default:
		m.DependentCount = d.DependentCount
		m.DirectDependentCount = d.DirectDependentCount
	}

	c.logger().Debug("fetched deps.dev metrics",
		"system", system, "package", name,
		"dependents", m.DependentCount, "advisories", m.AdvisoryCount)
	return m, nil
}

// queryName is the spelling deps.dev resolves. PyPI names are looked up in
// their PEP 503 form; Go module paths and the other systems are case-sensitive
// and keep the declared name.
func queryName(system, ecosystem, name string) string {
	if system == "PYPI" {
		return identity.Normalize(ecosystem, name)
	}
	return name
}

// defaultVersion picks the version deps.dev marks as default, falling back to
// the last listed one.
func defaultVersion(pkg *Package) (PackageVersion, bool) {
	if len(pkg.Versions) == 0 {
		return PackageVersion{}, false
	}
	for _, v := range pkg.Versions {
		if v.IsDefault {
			return v, true
		}
	}
	return pkg.Versions[len(pkg.Versions)-1], true
}

func links(v *Version) metrics.Links {
	var l metrics.Links
	for _, link := range v.Links {
		switch link.Label {
		case "SOURCE_REPO":
			if l.Repository == "" {
				l.Repository = link.URL
			}
		case "HOMEPAGE":
			if l.Homepage == "" {
				l.Homepage = link.URL
			}
		case "DOCUMENTATION":
			if l.Documentation == "" {
				l.Documentation = link.URL
			}
		}
	}
	if l.Repository == "" {
		for _, p := range v.RelatedProjects {
			if p.RelationType == "SOURCE_REPO" && p.ProjectKey.ID != "" {
				l.Repository = "https://" + p.ProjectKey.ID
				break
			}
		}
	}
	return l
}

// GetPackage fetches the version list of a package.
func (c *DepsDevClient) GetPackage(ctx context.Context, system, name string) (*Package, error) {
	u := fmt.Sprintf("%s/systems/%s/packages/%s", c.BaseURL, system, url.PathEscape(name))
	var pkg Package
	if err := c.get(ctx, u, &pkg); err != nil {
		return nil, fmt.Errorf("fetching package %s/%s: %w", system, name, err)
	}
	return &pkg, nil
}

// GetVersion fetches details of one package version.
func (c *DepsDevClient) GetVersion(ctx context.Context, system, name, version string) (*Version, error) {
	u := fmt.Sprintf("%s/systems/%s/packages/%s/versions/%s",
		c.BaseURL, system, url.PathEscape(name), url.PathEscape(version))
	var v Version
	if err := c.get(ctx, u, &v); err != nil {
		return nil, fmt.Errorf("fetching version %s/%s@%s: %w", system, name, version, err)
	}
	return &v, nil
}

// GetDependents fetches dependent counts of one package version.
func (c *DepsDevClient) GetDependents(ctx context.Context, system, name, version string) (*Dependents, error) {
	u := fmt.Sprintf("%s/systems/%s/packages/%s/versions/%s:dependents",
		c.BaseURL, system, url.PathEscape(name), url.PathEscape(version))
	var d Dependents
	if err := c.get(ctx, u, &d); err != nil {
		return nil, fmt.Errorf("fetching dependents %s/%s@%s: %w", system, name, version, err)
	}
	return &d, nil
}

func (c *DepsDevClient) get(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
