package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Report is the stable JSON record of one run.
type Report struct {
	RunID      string     `json:"run_id"`
	Input      string     `json:"input,omitempty"`
	Output     string     `json:"output,omitempty"`
	Thresholds Thresholds `json:"thresholds"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Summary    Summary    `json:"summary"`
	Kept       []string   `json:"kept"`
	Decisions  []Decision `json:"decisions"`
}

func (r *Report) add(d Decision) {
	r.Decisions = append(r.Decisions, d)
	r.Summary.add(d.Outcome)
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// JSON returns the indented JSON encoding.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// WriteFile writes the report as JSON.
func (r *Report) WriteFile(path string) error {
	data, err := r.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
