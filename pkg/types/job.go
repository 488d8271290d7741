// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Label is the human-readable status shown in the UI.
func (s JobStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Converting"
	case StatusSucceeded:
		return "Done"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// SourceKind identifies where a job's input comes from.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// Job is one user-submitted file or URL conversion request.
type Job struct {
	// ID is a random UUID assigned at submission.
	ID string `json:"id" yaml:"id"`

	// SessionID scopes the job to a browser session.
	SessionID string `json:"session_id" yaml:"session_id"`

	// BatchID groups the jobs created by a single submission.
	BatchID string `json:"batch_id" yaml:"batch_id"`

	Kind SourceKind `json:"kind" yaml:"kind"`

	// Source is the local path of the uploaded file, or the URL.
	Source string `json:"source" yaml:"source"`

	// DisplayName is the original filename or the URL as entered.
	DisplayName string `json:"display_name" yaml:"display_name"`

	// SuggestedName is the default output filename, always ending in ".md".
	SuggestedName string `json:"suggested_name" yaml:"suggested_name"`

	Status JobStatus `json:"status" yaml:"status"`

	// Result holds the Markdown text. Present iff Status is succeeded.
	Result string `json:"-" yaml:"-"`

	// Error holds the failure message. Present iff Status is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// ErrorCategory classifies Error (see ErrorCategory).
	ErrorCategory string `json:"error_category,omitempty" yaml:"error_category,omitempty"`

	WordCount int `json:"word_count" yaml:"word_count"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a copy of j that shares no mutable state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Batch is the set of jobs created by one submission.
type Batch struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Kind      SourceKind `json:"kind"`
	JobIDs    []string   `json:"job_ids"`
}

// EventType identifies a progress event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventJob      EventType = "job"
	EventDone     EventType = "done"
)

// Event is a progress notification for a batch.
type Event struct {
	Type        EventType `json:"type"`
	BatchID     string    `json:"batch_id"`
	Progress    float64   `json:"progress"`
	Description string    `json:"description,omitempty"`
	Job         *Job      `json:"job,omitempty"`
}

// MarkdownExt is the fixed extension of every output file.
const MarkdownExt = ".md"

// OutputLocation is the user-chosen destination for a saved result.
type OutputLocation struct {
	Directory string `json:"directory"`
	Filename  string `json:"filename"`
}

// Name returns Filename with the ".md" extension enforced.
func (l OutputLocation) Name() string {
	name := strings.TrimSpace(l.Filename)
	if strings.EqualFold(filepath.Ext(name), MarkdownExt) {
		return strings.TrimSuffix(name, filepath.Ext(name)) + MarkdownExt
	}
	return name + MarkdownExt
}

// Path returns the full output path.
func (l OutputLocation) Path() string {
	return filepath.Join(l.Directory, l.Name())
}

// Preview is a truncated rendition of converted Markdown.
type Preview struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	Truncated bool   `json:"truncated"`
}
