// Package report summarizes an upload cycle for humans and for CI tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efebarandurmaz/smupload/internal/upload"
)

// Report collects statistics for one after-emit upload cycle.
type Report struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Uploads    []UploadEntry `json:"uploads"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Errors     []string      `json:"errors,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// UploadEntry is one pair's terminal result.
type UploadEntry struct {
	Chunk      string        `json:"chunk"`
	Bundle     string        `json:"bundle"`
	SourceMap  string        `json:"source_map"`
	State      upload.State  `json:"state"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// New starts tracking a cycle.
func New() *Report {
	return &Report{StartedAt: time.Now()}
}

// Collect copies the outcomes of an upload cycle into the report.
func (r *Report) Collect(res upload.Result) {
	r.CycleID = res.CycleID
	for _, o := range res.Outcomes {
		entry := UploadEntry{
			Chunk:      o.Pair.Chunk,
			Bundle:     o.Pair.Bundle,
			SourceMap:  o.Pair.SourceMap,
			State:      o.State,
			Attempts:   o.Attempts,
			Duration:   o.Duration,
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			entry.Error = o.Err.Error()
			r.Failed++
		} else {
			r.Succeeded++
		}
		r.Uploads = append(r.Uploads, entry)
	}
}

// Finish marks the cycle complete and records the host diagnostics.
func (r *Report) Finish(errs, warnings []error) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.DurationMS = r.Duration.Milliseconds()
	r.Errors = messages(errs)
	r.Warnings = messages(warnings)
}

func messages(errs []error) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

// PrintSummary writes a human-readable summary.
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\nsource map upload %s (%s)\n", r.CycleID, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  uploaded: %d  failed: %d\n", r.Succeeded, r.Failed)
	for _, u := range r.Uploads {
		fmt.Fprintf(w, "  %-10s %-30s %-9s attempts=%d %s\n",
			u.Chunk, u.SourceMap, u.State, u.Attempts, u.Duration.Round(time.Millisecond))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error:   %s\n", e)
	}
	for _, e := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", e)
	}
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
