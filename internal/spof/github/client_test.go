package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache map[string][]byte

func (m memCache) Get(key string, v any) (bool, error) {
	b, ok := m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

func (m memCache) Set(key string, v any) error {
	b, err := json.Marshal(v)
	m[key] = b
	return err
}

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	c, err := NewClientWithBase(context.Background(), "test-token", server.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestTopRepos(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, []map[string]any{
				{"name": "web", "full_name": "acme/web", "stargazers_count": 5, "forks_count": 10},
			})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/orgs/acme/repos?page=2>; rel="next"`, r.Host))
		writeJSON(w, []map[string]any{
			{"name": "api", "full_name": "acme/api", "stargazers_count": 20, "forks_count": 1},
			{"name": "fork", "full_name": "acme/fork", "stargazers_count": 900, "fork": true},
			{"name": "old", "full_name": "acme/old", "stargazers_count": 800, "archived": true},
			{"name": "docs", "full_name": "acme/docs", "stargazers_count": 1},
		})
	})
	client := newTestClient(t, mux)

	tests := []struct {
		name string
		max  int
		want []string
	}{
		{"all", 0, []string{"web", "api", "docs"}},
		{"top two", 2, []string{"web", "api"}},
		{"more than available", 10, []string{"web", "api", "docs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos, err := client.TopRepos(context.Background(), "acme", tt.max)
			require.NoError(t, err)
			var names []string
			for _, r := range repos {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestTopReposError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/missing/repos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
	})
	client := newTestClient(t, mux)

	_, err := client.TopRepos(context.Background(), "missing", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing repositories of missing")
}

func lodashMux(hits map[string]int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/lodash/lodash", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		writeJSON(w, map[string]any{
			"full_name":         "lodash/lodash",
			"stargazers_count":  58000,
			"forks_count":       7000,
			"open_issues_count": 12,
			"language":          "JavaScript",
			"owner":             map[string]any{"login": "lodash", "type": "Organization"},
			"organization":      map[string]any{"login": "lodash"},
		})
	})
	mux.HandleFunc("/repos/lodash/lodash/contributors", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("anon") {
			hits["anon"]++
		}
		w.Header().Set("Link", fmt.Sprintf(
			`<http://%s/repos/lodash/lodash/contributors?per_page=1&page=2>; rel="next", <http://%s/repos/lodash/lodash/contributors?per_page=1&page=342>; rel="last"`,
			r.Host, r.Host))
		writeJSON(w, []map[string]any{{"login": "jdalton"}})
	})
	mux.HandleFunc("/repos/lodash/lodash/releases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{
			"tag_name":     "4.17.21",
			"created_at":   "2021-02-20T15:42:16Z",
			"published_at": "2021-02-20T16:00:00Z",
		}})
	})
	mux.HandleFunc("/repos/lodash/lodash/commits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{
			"sha": "abc",
			"commit": map[string]any{
				"author": map[string]any{"name": "jdalton", "date": "2024-03-01T10:00:00Z"},
			},
		}})
	})
	return mux
}

func TestRepoMetrics(t *testing.T) {
	hits := map[string]int{}
	cache := memCache{}
	client := newTestClient(t, lodashMux(hits), WithCache(cache))

	got, err := client.RepoMetrics(context.Background(), "lodash", "lodash")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "lodash/lodash", got.FullName)
	assert.Equal(t, 58000, got.Stars)
	assert.Equal(t, 7000, got.Forks)
	assert.Equal(t, 12, got.OpenIssues)
	assert.Equal(t, 342, got.Contributors)
	assert.True(t, got.OrgBacked)
	assert.Equal(t, "JavaScript", got.Language)
	assert.Equal(t, "2021-02-20T16:00:00Z", got.LastRelease)
	assert.Equal(t, "2024-03-01T10:00:00Z", got.LastCommit)

	again, err := client.RepoMetrics(context.Background(), "lodash", "lodash")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, hits["/repos/lodash/lodash"], "second lookup is served from the cache")
	assert.Contains(t, cache, "github_repo_metrics:lodash/lodash")
	assert.Zero(t, hits["anon"], "anonymous contributors are not requested")
}

func TestRepoMetricsPartialFetchNotCached(t *testing.T) {
	hits := map[string]int{}
	mux := lodashMux(hits)
	failing := http.NewServeMux()
	failing.HandleFunc("/repos/lodash/lodash/contributors", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	failing.Handle("/", mux)
	cache := memCache{}
	client := newTestClient(t, failing, WithCache(cache))

	got, err := client.RepoMetrics(context.Background(), "lodash", "lodash")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.Contributors)
	assert.Equal(t, 58000, got.Stars)
	assert.Equal(t, "2024-03-01T10:00:00Z", got.LastCommit)
	assert.NotContains(t, cache, "github_repo_metrics:lodash/lodash")

	_, err = client.RepoMetrics(context.Background(), "lodash", "lodash")
	require.NoError(t, err)
	assert.Equal(t, 2, hits["/repos/lodash/lodash"], "an incomplete record is fetched again")
}

func TestRepoMetricsSparseRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/solo/tool", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"full_name":        "solo/tool",
			"stargazers_count": 3,
			"owner":            map[string]any{"login": "solo", "type": "User"},
		})
	})
	mux.HandleFunc("/repos/solo/tool/contributors", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"login": "solo"}})
	})
	mux.HandleFunc("/repos/solo/tool/releases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{})
	})
	mux.HandleFunc("/repos/solo/tool/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]string{"message": "Git Repository is empty."})
	})
	client := newTestClient(t, mux)

	got, err := client.RepoMetrics(context.Background(), "solo", "tool")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Contributors)
	assert.False(t, got.OrgBacked)
	assert.Empty(t, got.LastRelease)
	assert.Empty(t, got.LastCommit)
}

func TestRepoMetricsNotFound(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())

	got, err := client.RepoMetrics(context.Background(), "gone", "away")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepoMetricsServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client := newTestClient(t, mux)

	_, err := client.RepoMetrics(context.Background(), "acme", "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching repository acme/broken")
}

func TestManifestFiles(t *testing.T) {
	gomod := "module example.com/api\n\nrequire github.com/spf13/cobra v1.8.0\n"
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api/contents/go.mod", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"type":     "file",
			"name":     "go.mod",
			"path":     "go.mod",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(gomod)),
		})
	})
	client := newTestClient(t, mux)

	files, err := client.ManifestFiles(context.Background(), "acme", "api")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"go.mod": gomod}, files)
}

func TestRateLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"resources": map[string]any{
				"core": map[string]any{"limit": 5000, "remaining": 4200, "reset": 1700000000},
			},
		})
	})
	client := newTestClient(t, mux)

	rl, err := client.RateLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, rl.Limit)
	assert.Equal(t, 4200, rl.Remaining)
	assert.Equal(t, 800, rl.Used)
	assert.Equal(t, int64(1700000000), rl.Reset.Unix())
}
