package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v60/github"

	"github.com/build-flow-labs/spof/internal/spof/metrics"
	"github.com/build-flow-labs/spof/sbom"
)

// RepoMetrics collects forge metrics for owner/repo. A repository that does
// not exist (or is not visible to the token) yields nil and no error.
func (c *Client) RepoMetrics(ctx context.Context, owner, repo string) (*metrics.ForgeMetrics, error) {
	fullName := owner + "/" + repo
	key := "github_repo_metrics:" + fullName
	if c.cache != nil {
		var cached metrics.ForgeMetrics
		if ok, err := c.cache.Get(key, &cached); err != nil {
			c.logger.Warn("reading cached repository metrics", "repo", fullName, "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if isNotFound(err) {
		c.logger.Debug("repository not found", "repo", fullName)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s: %w", fullName, err)
	}

	m := &metrics.ForgeMetrics{
		FullName:   r.GetFullName(),
		Stars:      r.GetStargazersCount(),
		Forks:      r.GetForksCount(),
		OpenIssues: r.GetOpenIssuesCount(),
		OrgBacked:  r.Organization != nil || r.GetOwner().GetType() == "Organization",
		Archived:   r.GetArchived(),
		Language:   r.GetLanguage(),
	}
	if m.FullName == "" {
		m.FullName = fullName
	}

	// The remaining lookups are best effort. A failure leaves the field at
	// its zero value (no contributors scores as the riskiest maintainer
	// profile, an empty timestamp drops that activity signal), so such a
	// record is returned but not cached, and the next run asks again.
	complete := true
	if n, err := c.contributorCount(ctx, owner, repo); err != nil {
		c.logger.Warn("counting contributors", "repo", fullName, "error", err)
		complete = false
	} else {
		m.Contributors = n
	}
	if t, err := c.lastRelease(ctx, owner, repo); err != nil {
		c.logger.Warn("fetching latest release", "repo", fullName, "error", err)
		complete = false
	} else {
		m.LastRelease = t
	}
	if t, err := c.lastCommit(ctx, owner, repo); err != nil {
		c.logger.Warn("fetching latest commit", "repo", fullName, "error", err)
		complete = false
	} else {
		m.LastCommit = t
	}

	if c.cache != nil && complete {
		if err := c.cache.Set(key, m); err != nil {
			c.logger.Warn("caching repository metrics", "repo", fullName, "error", err)
		}
	}
	c.logger.Debug("fetched repository metrics",
		"repo", fullName, "stars", m.Stars, "contributors", m.Contributors, "org_backed", m.OrgBacked)
	return m, nil
}

// contributorCount requests one contributor per page and reads the total
// from the last page number of the pagination links. Anonymous (unlinked
// email) contributors are not counted.
func (c *Client) contributorCount(ctx context.Context, owner, repo string) (int, error) {
	opts := &gh.ListContributorsOptions{ListOptions: gh.ListOptions{PerPage: 1}}
	list, resp, err := c.gh.Repositories.ListContributors(ctx, owner, repo, opts)
	if err != nil {
		return 0, err
	}
	if resp.LastPage > 0 {
		return resp.LastPage, nil
	}
	return len(list), nil
}

func (c *Client) lastRelease(ctx context.Context, owner, repo string) (string, error) {
	releases, _, err := c.gh.Repositories.ListReleases(ctx, owner, repo, &gh.ListOptions{PerPage: 1})
	if err != nil {
		return "", err
	}
	if len(releases) == 0 {
		return "", nil
	}
	rel := releases[0]
	ts := rel.GetPublishedAt()
	if ts.IsZero() {
		ts = rel.GetCreatedAt()
	}
	return formatTimestamp(ts), nil
}

func (c *Client) lastCommit(ctx context.Context, owner, repo string) (string, error) {
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, &gh.CommitsListOptions{
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		// Empty repositories answer 409 Conflict.
		if resp != nil && resp.StatusCode == 409 {
			return "", nil
		}
		return "", err
	}
	if len(commits) == 0 {
		return "", nil
	}
	commit := commits[0].GetCommit()
	ts := commit.GetAuthor().GetDate()
	if ts.IsZero() {
		ts = commit.GetCommitter().GetDate()
	}
	return formatTimestamp(ts), nil
}

func formatTimestamp(ts gh.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

// ManifestFiles fetches the dependency manifests at the root of a repository,
// keyed by file name. Missing files are skipped.
func (c *Client) ManifestFiles(ctx context.Context, owner, repo string) (map[string]string, error) {
	files := make(map[string]string)
	for _, name := range sbom.ManifestFiles() {
		fc, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, name, nil)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching %s from %s/%s: %w", name, owner, repo, err)
		}
		if fc == nil {
			continue
		}
		content, err := fc.GetContent()
		if err != nil {
			return nil, fmt.Errorf("decoding %s from %s/%s: %w", name, owner, repo, err)
		}
		files[name] = content
	}
	return files, nil
}
