package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/matzehuels/nftgen/internal/fsx"
	"github.com/matzehuels/nftgen/pkg/colortrait"
	"github.com/matzehuels/nftgen/pkg/errors"
)

// ReportFile is the report's filename inside the output directory.
const ReportFile = "report.json"

// Status is the outcome of one item.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped" // never started (fail-fast or cancellation)
)

// Report is the per-index outcome set of a run. It is written to
// {output}/report.json and read back by --resume.
type Report struct {
	RunID      string    `json:"run_id"`
	Collection string    `json:"collection"`
	Count      int       `json:"count"`
	Seed       uint64    `json:"seed"`
	Seeded     bool      `json:"seeded"` // seed came from the user rather than the run
	Workers    int       `json:"workers"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Collection settings reused and enforced by --resume and --indices.
	LayersPath  string            `json:"layers_path,omitempty"`
	LayersOrder []string          `json:"layers_order,omitempty"`
	Description string            `json:"description,omitempty"`
	ColorTrait  colortrait.Method `json:"color_trait,omitempty"`

	Summary Summary      `json:"summary"`
	Items   []ItemResult `json:"items"`
}

// Summary counts items per status.
type Summary struct {
	OK      int `json:"ok"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ItemResult is one index's outcome.
type ItemResult struct {
	Index      int    `json:"index"`
	Status     Status `json:"status"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Finalize normalizes times to UTC, sorts items by index and recomputes the
// summary from the items.
func (r *Report) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.Slice(r.Items, func(i, j int) bool { return r.Items[i].Index < r.Items[j].Index })

	var s Summary
	for _, it := range r.Items {
		switch it.Status {
		case StatusOK:
			s.OK++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Summary = s
}

// Pending returns the indices that did not finish successfully.
func (r *Report) Pending() []int {
	var out []int
	for _, it := range r.Items {
		if it.Status != StatusOK {
			out = append(out, it.Index)
		}
	}
	return out
}

// Item returns the result for index.
func (r *Report) Item(index int) (ItemResult, bool) {
	for _, it := range r.Items {
		if it.Index == index {
			return it, true
		}
	}
	return ItemResult{}, false
}

// Err returns an error describing the lowest-index failure, or nil.
func (r *Report) Err() error {
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			code := errors.Code(it.ErrorCode)
			if code == "" {
				code = errors.ErrCodeInternal
			}
			return errors.New(code, "item %d failed: %s (%d failed, %d skipped)",
				it.Index, it.Error, r.Summary.Failed, r.Summary.Skipped)
		}
	}
	return nil
}

// merge overlays newer results onto r, keyed by index.
func (r *Report) merge(items []ItemResult) {
	pos := make(map[int]int, len(r.Items))
	for i, it := range r.Items {
		pos[it.Index] = i
	}
	for _, it := range items {
		if p, ok := pos[it.Index]; ok {
			r.Items[p] = it
		} else {
			r.Items = append(r.Items, it)
		}
	}
}

// WriteReport stores r as {dir}/report.json atomically.
func WriteReport(dir string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeJSON, err, "encode report")
	}
	if err := fsx.WriteFileAtomic(dir, ReportFile, append(data, '\n')); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", filepath.Join(dir, ReportFile))
	}
	return nil
}

// ReadReport loads {dir}/report.json.
func ReadReport(dir string) (*Report, error) {
	path := filepath.Join(dir, ReportFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read report %s", path)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeJSON, err, "parse report %s", path)
	}
	return &r, nil
}

// String summarizes the report in one line.
func (r *Report) String() string {
	return fmt.Sprintf("run %s: %d ok, %d failed, %d skipped", r.RunID, r.Summary.OK, r.Summary.Failed, r.Summary.Skipped)
}
