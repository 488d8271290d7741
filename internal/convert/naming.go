// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"path/filepath"
	"strings"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

const defaultURLName = "webpage"

// SuggestName derives the default output filename from a source filename by
// replacing its last extension with ".md".
func SuggestName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = defaultURLName
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return stem + types.MarkdownExt
}

// SuggestURLName derives the default output filename from a URL: the last
// "/"-separated segment (query and fragment removed), or "webpage" when the
// URL ends in a slash.
func SuggestURLName(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	seg := s[strings.LastIndex(s, "/")+1:]
	if seg == "" {
		seg = defaultURLName
	}
	return SuggestName(seg)
}
