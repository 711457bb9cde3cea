package github

import (
	"context"
	"fmt"
	"sort"

	gh "github.com/google/go-github/v60/github"
)

// Repo is an organization repository selected for analysis.
type Repo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	URL           string `json:"url"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language,omitempty"`
	Stars         int    `json:"stars"`
	Forks         int    `json:"forks"`
}

// Rank orders repositories for selection; forks count double because they
// signal active downstream use.
func (r Repo) Rank() int {
	return r.Stars + 2*r.Forks
}

// ListRepos lists the non-fork, non-archived repositories of an organization.
func (c *Client) ListRepos(ctx context.Context, org string) ([]Repo, error) {
	opts := &gh.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []Repo
	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories of %s: %w", org, err)
		}
		for _, r := range repos {
			if r.GetFork() || r.GetArchived() {
				c.logger.Debug("skipping repository", "repo", r.GetName(), "fork", r.GetFork(), "archived", r.GetArchived())
				continue
			}
			all = append(all, Repo{
				Name:          r.GetName(),
				FullName:      r.GetFullName(),
				URL:           r.GetHTMLURL(),
				CloneURL:      r.GetCloneURL(),
				DefaultBranch: r.GetDefaultBranch(),
				Language:      r.GetLanguage(),
				Stars:         r.GetStargazersCount(),
				Forks:         r.GetForksCount(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// TopRepos returns up to max repositories of org with the highest rank.
func (c *Client) TopRepos(ctx context.Context, org string, max int) ([]Repo, error) {
	repos, err := c.ListRepos(ctx, org)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(repos, func(i, j int) bool { return repos[i].Rank() > repos[j].Rank() })
	total := len(repos)
	if max > 0 && len(repos) > max {
		repos = repos[:max]
	}

	c.logger.Info("selected repositories", "org", org, "selected", len(repos), "total", total)
	if len(repos) > 0 {
		c.logger.Debug("repository rank range",
			"top", repos[0].Name, "top_rank", repos[0].Rank(),
			"last", repos[len(repos)-1].Name, "last_rank", repos[len(repos)-1].Rank())
	}
	return repos, nil
}
