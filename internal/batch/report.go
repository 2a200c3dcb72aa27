// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// Report is the outcome of one Run.
type Report struct {
	RunID    string             `json:"run_id" yaml:"run_id"`
	Started  time.Time          `json:"started" yaml:"started"`
	Finished time.Time          `json:"finished" yaml:"finished"`
	Jobs     []*types.PosterJob `json:"jobs" yaml:"jobs"`

	// Aborted is set when the run stopped early; AbortReason says why.
	Aborted     bool   `json:"aborted" yaml:"aborted"`
	AbortReason string `json:"abort_reason,omitempty" yaml:"abort_reason,omitempty"`
}

func (r Report) count(status types.JobStatus) int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

// Succeeded returns the number of jobs that wrote their markdown.
func (r Report) Succeeded() int { return r.count(types.StatusSuccess) }

// Failed returns the number of failed jobs.
func (r Report) Failed() int { return r.count(types.StatusFailed) }

// Skipped returns the number of jobs skipped because their output existed.
func (r Report) Skipped() int { return r.count(types.StatusSkipped) }

// Pending returns the number of jobs never attempted.
func (r Report) Pending() int { return r.count(types.StatusPending) }

// Total returns the number of jobs.
func (r Report) Total() int { return len(r.Jobs) }

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// FormatSummary writes the final summary line, a table of failures, and
// the jobs left unattempted by an abort.
func (r Report) FormatSummary(w io.Writer) {
	fmt.Fprintf(w, "\nBatch summary: %d succeeded, %d failed, %d skipped (total: %d) in %s\n",
		r.Succeeded(), r.Failed(), r.Skipped(), r.Total(), r.Duration().Round(time.Millisecond))

	if r.Failed() > 0 {
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"File", "Stage", "Error", "Reason"})
		for _, j := range r.Jobs {
			if j.Status != types.StatusFailed {
				continue
			}
			tw.AppendRow(table.Row{filepath.Base(j.SourcePath), string(j.FailedStage), j.ErrorKind, j.Error})
		}
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 4, WidthMax: 80, Align: text.AlignLeft},
		})
		fmt.Fprintln(w, tw.Render())
	}

	if degraded := r.degraded(); len(degraded) > 0 {
		fmt.Fprintf(w, "Related work omitted for %s: %s\n",
			english.Plural(len(degraded), "poster", ""), strings.Join(degraded, ", "))
	}

	if r.Aborted {
		fmt.Fprintf(w, "Batch aborted: %s\n", r.AbortReason)
		if pending := r.pendingNames(); len(pending) > 0 {
			fmt.Fprintf(w, "Not attempted (%d): %s\n", len(pending), strings.Join(pending, ", "))
		}
	}
}

func (r Report) degraded() []string {
	var names []string
	for _, j := range r.Jobs {
		if j.Status == types.StatusSuccess && j.SearchNote != "" {
			names = append(names, filepath.Base(j.SourcePath))
		}
	}
	return names
}

func (r Report) pendingNames() []string {
	var names []string
	for _, j := range r.Jobs {
		if j.Status == types.StatusPending {
			names = append(names, filepath.Base(j.SourcePath))
		}
	}
	return names
}

// WriteYAML saves the report as YAML.
func (r Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return writeFileAtomic(path, data)
}

// WriteJSON saves the report as indented JSON.
func (r Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// Write saves the report as JSON when path ends in .json and YAML otherwise.
func (r Report) Write(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return r.WriteJSON(path)
	}
	return r.WriteYAML(path)
}
