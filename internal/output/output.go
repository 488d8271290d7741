// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package output writes converted Markdown to the destination a user chose.
// Exactly one file is written per saved job; existing files are only
// replaced when the caller asks for it.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// SaveOptions controls how Save treats an existing destination.
type SaveOptions struct {
	// Overwrite replaces an existing file at the destination.
	Overwrite bool
}

// SaveResult describes a written output file.
type SaveResult struct {
	// Source is the display name of the converted input.
	Source string `json:"source"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// Message renders the confirmation shown after a successful save.
func (r SaveResult) Message() string {
	sizeMB := float64(r.Size) / (1024 * 1024)
	return fmt.Sprintf("✓ Converted %s\nSize: %.1f MB\nSaved as: %s", baseName(r.Source), sizeMB, r.Path)
}

// FailureMessage renders the line shown when a job could not be converted
// or saved.
func FailureMessage(source string, err error) string {
	if errors.Is(err, types.ErrNoLocation) {
		return fmt.Sprintf("✗ Skipped %s - No save location selected", baseName(source))
	}
	return fmt.Sprintf("✗ Error: %s - %v", baseName(source), err)
}

// frontmatter is prepended to the Markdown when enabled.
type frontmatter struct {
	Source      string           `yaml:"source"`
	Kind        types.SourceKind `yaml:"kind"`
	ConvertedAt string           `yaml:"converted_at"`
	WordCount   int              `yaml:"word_count"`
}

// Writer persists job results through an afero filesystem.
type Writer struct {
	fs          afero.Fs
	frontmatter bool
	now         func() time.Time
}

// NewWriter returns a Writer over fs. A nil fs means the OS filesystem.
func NewWriter(fs afero.Fs, withFrontmatter bool) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs, frontmatter: withFrontmatter, now: time.Now}
}

// Save writes job's Markdown to loc. The job must have succeeded, the
// location must name a directory, and an existing file is only replaced
// when opts.Overwrite is set. The file is written to a temporary name in
// the destination directory and renamed into place.
func (w *Writer) Save(job *types.Job, loc types.OutputLocation, opts SaveOptions) (SaveResult, error) {
	if job == nil {
		return SaveResult{}, fmt.Errorf("%w: job", types.ErrNotFound)
	}
	if job.Status != types.StatusSucceeded || job.Result == "" {
		return SaveResult{}, fmt.Errorf("%w: %s is %s", types.ErrNotReady, job.DisplayName, job.Status)
	}
	if strings.TrimSpace(loc.Directory) == "" {
		return SaveResult{}, fmt.Errorf("%w: No save location selected", types.ErrNoLocation)
	}
	if loc.Filename == "" {
		loc.Filename = job.SuggestedName
	}
	if err := validateFilename(loc.Filename); err != nil {
		return SaveResult{}, err
	}

	loc.Directory = filepath.Clean(loc.Directory)
	dir := loc.Directory
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return SaveResult{}, fmt.Errorf("%w: creating %s: %v", types.ErrFileSystem, dir, err)
	}

	dest := loc.Path()
	info, err := w.fs.Stat(dest)
	switch {
	case err == nil && info.IsDir():
		return SaveResult{}, fmt.Errorf("%w: %s is a directory", types.ErrDestinationExists, dest)
	case err == nil && !opts.Overwrite:
		return SaveResult{}, fmt.Errorf("%w: %s", types.ErrDestinationExists, dest)
	case err != nil && !os.IsNotExist(err):
		return SaveResult{}, fmt.Errorf("%w: checking %s: %v", types.ErrFileSystem, dest, err)
	}

	content, err := w.render(job)
	if err != nil {
		return SaveResult{}, err
	}

	// Without Overwrite the destination is claimed exclusively, so a file
	// created since the Stat above is never replaced.
	claimed := false
	if !opts.Overwrite {
		f, err := w.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return SaveResult{}, fmt.Errorf("%w: %s", types.ErrDestinationExists, dest)
			}
			return SaveResult{}, fmt.Errorf("%w: creating %s: %v", types.ErrFileSystem, dest, err)
		}
		f.Close()
		claimed = true
	}
	release := func() {
		if claimed {
			w.fs.Remove(dest)
		}
	}

	tmp, err := afero.TempFile(w.fs, dir, ".markitdown-*.tmp")
	if err != nil {
		release()
		return SaveResult{}, fmt.Errorf("%w: creating temp file in %s: %v", types.ErrFileSystem, dir, err)
	}
	tmpName := tmp.Name()
	n, writeErr := tmp.Write(content)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		w.fs.Remove(tmpName)
		release()
		return SaveResult{}, fmt.Errorf("%w: writing %s: %v", types.ErrFileSystem, dest, writeErr)
	}
	if err := w.fs.Rename(tmpName, dest); err != nil {
		w.fs.Remove(tmpName)
		release()
		return SaveResult{}, fmt.Errorf("%w: renaming into %s: %v", types.ErrFileSystem, dest, err)
	}

	return SaveResult{Source: job.DisplayName, Path: dest, Size: int64(n)}, nil
}

func (w *Writer) render(job *types.Job) ([]byte, error) {
	if !w.frontmatter {
		return []byte(job.Result), nil
	}
	fm, err := yaml.Marshal(frontmatter{
		Source:      job.DisplayName,
		Kind:        job.Kind,
		ConvertedAt: w.now().UTC().Format(time.RFC3339),
		WordCount:   job.WordCount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(job.Result)
	return []byte(b.String()), nil
}

func validateFilename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid filename %q", types.ErrNoLocation, name)
	}
	return nil
}

func baseName(source string) string {
	if strings.Contains(source, "://") {
		return source
	}
	return filepath.Base(source)
}
