// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// Source is one local input of a batch run.
type Source struct {
	// Path is where the file can be read.
	Path string
	// DisplayName is the name reported to the user and used for naming output.
	DisplayName string
}

// SaveFunc persists the Markdown produced for src and returns the written path.
type SaveFunc func(src Source, markdown string) (string, error)

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the total number of inputs processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any input failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ConvertBatch converts sources one at a time, in order, printing per-file
// status to w and returning a summary. The type is taken from Path, so a
// downloaded page is judged by its temp file rather than its URL. An output
// that already exists is reported as skipped. Cancelling ctx fails the remaining inputs.
func ConvertBatch(ctx context.Context, c Converter, sources []Source, save SaveFunc, w io.Writer) BatchResult {
	var result BatchResult
	for _, src := range sources {
		name := src.DisplayName
		if name == "" {
			name = src.Path
		}
		if err := ValidateExtension(src.Path); err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
			result.Failed++
			continue
		}

		md, err := c.Convert(ctx, src.Path)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
			result.Failed++
			continue
		}

		path, err := save(src, md)
		switch {
		case errors.Is(err, types.ErrDestinationExists):
			fmt.Fprintf(w, "skipped: %s (%v)\n", name, err)
			result.Skipped++
		case err != nil:
			fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
			result.Failed++
		default:
			fmt.Fprintf(w, "converted: %s -> %s (%d words)\n", name, path, WordCount(md))
			result.Converted++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result
}
