package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/build-flow-labs/spof/internal/spof/report"
)

// ErrNotFound is returned for unknown report IDs.
var ErrNotFound = errors.New("report not found")

// IndexEntry is a denormalized report summary for fast listing.
type IndexEntry struct {
	ID                string    `json:"id"`
	Organization      string    `json:"organization"`
	AnalysisDate      time.Time `json:"analysis_date"`
	ReposAnalyzed     int       `json:"repos_analyzed"`
	TotalDependencies int       `json:"total_dependencies"`
	Critical          int       `json:"critical_dependencies"`
	High              int       `json:"high_priority"`
	Interrupted       bool      `json:"interrupted"`
	File              string    `json:"file"`

	path string
}

// Index is an in-memory listing of the reports in a directory.
type Index struct {
	mu      sync.RWMutex
	entries []IndexEntry
	dir     string
}

// NewIndex creates an index over the JSON reports in dir.
func NewIndex(dir string) *Index {
	return &Index{dir: dir}
}

// Load rescans the directory. Files that are not reports are skipped.
func (idx *Index) Load() error {
	dirEntries, err := os.ReadDir(idx.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading report directory: %w", err)
	}

	var entries []IndexEntry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(idx.dir, de.Name())
		r, err := report.Load(path)
		if err != nil || r.ID == "" {
			continue
		}
		entries = append(entries, IndexEntry{
			ID:                r.ID,
			Organization:      r.Organization,
			AnalysisDate:      r.AnalysisDate,
			ReposAnalyzed:     r.Config.ReposAnalyzed,
			TotalDependencies: r.Summary.TotalDependencies,
			Critical:          r.Summary.Critical,
			High:              r.Summary.High,
			Interrupted:       r.Interrupted,
			File:              de.Name(),
			path:              path,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AnalysisDate.After(entries[j].AnalysisDate)
	})

	idx.mu.Lock()
	idx.entries = entries
	idx.mu.Unlock()
	return nil
}

// List returns the entries for org (all when empty), newest first.
func (idx *Index) List(org string) []IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]IndexEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		if org != "" && !strings.EqualFold(e.Organization, org) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Get loads the full report with the given ID.
func (idx *Index) Get(id string) (*report.Report, error) {
	idx.mu.RLock()
	var path string
	for _, e := range idx.entries {
		if e.ID == id {
			path = e.path
			break
		}
	}
	idx.mu.RUnlock()

	if path == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return report.Load(path)
}

// Count returns the number of indexed reports.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}
