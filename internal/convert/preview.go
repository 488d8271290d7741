// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// PreviewLength is the number of characters shown before truncation.
const PreviewLength = 1000

var numbers = message.NewPrinter(language.English)

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// NewPreview renders text for display. Text longer than PreviewLength
// characters is cut and followed by the total word count.
func NewPreview(text string) types.Preview {
	words := WordCount(text)
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return types.Preview{Text: text, WordCount: words}
	}
	return types.Preview{
		Text:      numbers.Sprintf("%s...\n\n[Preview: %d words total]", string(runes[:PreviewLength]), words),
		WordCount: words,
		Truncated: true,
	}
}

// PreviewFile converts the file at path and returns its preview. Failures
// are rendered into the preview text rather than returned, so the caller
// can display them as-is; the error is returned as well for logging.
func PreviewFile(ctx context.Context, c Converter, path, displayName string) (types.Preview, error) {
	if !IsSupported(displayName) {
		err := ValidateExtension(displayName)
		return types.Preview{Text: fmt.Sprintf(
			"Unsupported file type: %s. Please upload one of the supported formats.", Ext(displayName),
		)}, err
	}
	text, err := c.Convert(ctx, path)
	if err != nil {
		return types.Preview{Text: fmt.Sprintf(
			"Preview error: %v\nPlease check if the file is valid and not corrupted.", err,
		)}, err
	}
	return NewPreview(text), nil
}
