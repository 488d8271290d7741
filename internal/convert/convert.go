// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns uploaded documents and downloaded pages into
// Markdown. The heavy lifting is delegated to markitdown (as a local binary
// or a container image); HTML has a built-in fallback.
package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// Converter transforms the file at path into Markdown text.
type Converter interface {
	// Name identifies the backend in logs and health output.
	Name() string

	// Convert reads the file at path and returns the Markdown content.
	Convert(ctx context.Context, path string) (string, error)
}

// supportedTypes lists the extensions accepted for conversion.
var supportedTypes = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".pptx": {},
	".xlsx": {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".html": {},
	".csv":  {},
	".json": {},
	".xml":  {},
	".zip":  {},
}

// SupportedExtensions returns the accepted extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedTypes))
	for ext := range supportedTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// IsSupported reports whether name has a supported extension.
func IsSupported(name string) bool {
	_, ok := supportedTypes[Ext(name)]
	return ok
}

// ValidateExtension returns an error wrapping types.ErrUnsupportedType when
// name does not carry a supported extension.
func ValidateExtension(name string) error {
	if IsSupported(name) {
		return nil
	}
	ext := Ext(name)
	if ext == "" {
		ext = "extensionless"
	}
	return fmt.Errorf("%w: %s files not supported. Please check supported formats.", types.ErrUnsupportedType, ext)
}
