// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"os"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// HTMLConverter converts HTML documents without markitdown.
type HTMLConverter struct{}

// Name returns "html".
func (HTMLConverter) Name() string { return "html" }

// Convert reads the HTML file at path and converts it to Markdown.
func (HTMLConverter) Convert(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrConversion, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", types.ErrFileSystem, path, err)
	}
	md, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("%w: converting HTML %s: %v", types.ErrConversion, path, err)
	}
	md = strings.TrimSpace(md)
	if md == "" {
		return "", fmt.Errorf("%w: no text content found in %s", types.ErrConversion, path)
	}
	return md, nil
}
