// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the poster-to-markdown pipeline:
// jobs, prompt payloads, citations, and configuration.
package types

import "time"

// JobStatus tracks a job's progress through the pipeline stages.
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusLoading     JobStatus = "loading"
	StatusSummarizing JobStatus = "summarizing"
	StatusSearching   JobStatus = "searching"
	StatusAssembling  JobStatus = "assembling"
	StatusSuccess     JobStatus = "success"
	StatusFailed      JobStatus = "failed"
	StatusSkipped     JobStatus = "skipped"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// PosterJob is one poster image's end-to-end processing unit within a run.
type PosterJob struct {
	// SourcePath is the poster image on disk.
	SourcePath string `json:"source_path" yaml:"source_path"`

	// OutputPath is where the markdown summary is written. It may change
	// after summarizing when filenames are derived from the poster title.
	OutputPath string `json:"output_path" yaml:"output_path"`

	// Status is the current pipeline stage or terminal outcome.
	Status JobStatus `json:"status" yaml:"status"`

	// FailedStage is the stage the job was in when it failed.
	FailedStage JobStatus `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`

	// ErrorKind names the error category (e.g. "UnsupportedFormatError").
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`

	// Error is the failure message. Empty on success.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Title is the poster title parsed from the summary.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// RelatedWork records whether a related-work section was written.
	RelatedWork bool `json:"related_work" yaml:"related_work"`

	// SearchNote explains why the related-work section was omitted.
	SearchNote string `json:"search_note,omitempty" yaml:"search_note,omitempty"`

	// Started and Finished stay zero, and are left out of reports, for
	// jobs that were never attempted.
	Started  time.Time `json:"started,omitzero" yaml:"started,omitempty"`
	Finished time.Time `json:"finished,omitzero" yaml:"finished,omitempty"`
}

// PromptContext is the request for one completion call: the encoded image
// and the instruction text. It is owned by a single job.
type PromptContext struct {
	// ImageBase64 is the base64-encoded image payload.
	ImageBase64 string

	// MIME is the media type of the decoded payload bytes.
	MIME string

	// Instruction is the prompt text sent alongside the image.
	Instruction string
}
