// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdiddy/markitdown-ui/internal/container"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// MarkitdownContainer converts files by piping them through the markitdown
// container image. It depends on a container.Runtime (docker or podman)
// injected at construction time.
type MarkitdownContainer struct {
	runtime container.Runtime
	image   string
}

// NewMarkitdownContainer creates a converter that runs image through rt. It
// verifies that the image exists locally before returning.
func NewMarkitdownContainer(ctx context.Context, rt container.Runtime, image string) (*MarkitdownContainer, error) {
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &MarkitdownContainer{runtime: rt, image: image}, nil
}

// Name reports the runtime and image, e.g. "docker:markitdown:latest".
func (m *MarkitdownContainer) Name() string {
	return m.runtime.Name() + ":" + m.image
}

// Convert streams the file at path into the container on stdin. The
// container cannot see the filename, so the extension is passed as a hint.
func (m *MarkitdownContainer) Convert(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", types.ErrFileSystem, path, err)
	}
	defer f.Close()

	var args []string
	if ext := strings.TrimPrefix(Ext(path), "."); ext != "" {
		args = []string{"-x", ext}
	}

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, m.image, args, f, &out); err != nil {
		return "", fmt.Errorf("%w: converting %s with markitdown: %v", types.ErrConversion, path, err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%w: markitdown produced empty output for %s", types.ErrConversion, path)
	}
	return out.String(), nil
}
