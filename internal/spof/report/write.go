package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

var csvHeader = []string{
	"Name",
	"Ecosystem",
	"SPOF Score",
	"Confidence",
	"Internal Criticality",
	"Ecosystem Popularity",
	"Maintainer Risk",
	"Security Health",
	"Upstream Activity",
	"Usage Count",
	"Recommendation",
}

// WriteJSON saves the report as indented JSON, creating parent directories.
func WriteJSON(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// WriteCSV saves one row per dependency for spreadsheet analysis.
func WriteCSV(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating CSV export: %w", err)
	}
	if err := EncodeCSV(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeCSV writes the CSV export to w.
func EncodeCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, d := range r.Dependencies {
		m := d.Metrics
		row := []string{
			d.Name,
			d.Ecosystem,
			num(d.SPOFScore),
			num(d.Confidence),
			num(m.InternalCriticality),
			num(m.EcosystemPopularity),
			num(m.MaintainerRisk),
			num(m.SecurityHealth),
			num(m.UpstreamActivity),
			strconv.Itoa(d.Usage.UsageCount),
			d.Recommendation,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for %s: %w", d.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Load reads a report written by WriteJSON.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &r, nil
}
