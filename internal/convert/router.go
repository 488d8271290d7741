// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/markitdown-ui/internal/container"
	"github.com/pdiddy/markitdown-ui/internal/logx"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// Router validates the input type and dispatches it to a backend: HTML may
// go to the built-in converter, everything else goes to markitdown.
type Router struct {
	markitdown Converter // nil when no markitdown backend is available
	html       Converter
	nativeHTML bool
	timeout    time.Duration
}

// NewRouterWith builds a Router from explicit backends. markitdown may be nil.
func NewRouterWith(markitdown Converter, nativeHTML bool, timeout time.Duration) *Router {
	return &Router{
		markitdown: markitdown,
		html:       HTMLConverter{},
		nativeHTML: nativeHTML,
		timeout:    timeout,
	}
}

// NewRouter selects the markitdown backend named by cfg.Backend. With
// BackendAuto it tries the host binary, then a container runtime, and
// finally settles for HTML-only conversion.
func NewRouter(ctx context.Context, cfg types.ConversionConfig) (*Router, error) {
	var (
		md  Converter
		err error
	)
	switch cfg.Backend {
	case types.BackendNative:
	case types.BackendBinary:
		md, err = NewMarkitdownBinary(cfg.Binary)
	case types.BackendContainer:
		md, err = newContainerBackend(ctx, cfg.Image)
	case types.BackendAuto, "":
		md = detectBackend(ctx, cfg)
	default:
		err = fmt.Errorf("unknown conversion backend %q (want auto, binary, container, or native)", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewRouterWith(md, cfg.NativeHTML, cfg.Timeout), nil
}

func newContainerBackend(ctx context.Context, image string) (Converter, error) {
	rt, err := container.DetectRuntime(ctx)
	if err != nil {
		return nil, err
	}
	return NewMarkitdownContainer(ctx, rt, image)
}

func detectBackend(ctx context.Context, cfg types.ConversionConfig) Converter {
	b, err := NewMarkitdownBinary(cfg.Binary)
	if err == nil {
		return b
	}
	logx.Log.Debug().Err(err).Msg("markitdown binary unavailable")

	c, err := newContainerBackend(ctx, cfg.Image)
	if err == nil {
		return c
	}
	logx.Log.Debug().Err(err).Msg("markitdown container unavailable")

	logx.Log.Warn().Msg("no markitdown backend found; only HTML inputs can be converted")
	return nil
}

// Name describes the configured backends.
func (r *Router) Name() string {
	if r.markitdown == nil {
		return r.html.Name()
	}
	if r.nativeHTML {
		return r.markitdown.Name() + "+" + r.html.Name()
	}
	return r.markitdown.Name()
}

// HasMarkitdown reports whether non-HTML inputs can be converted.
func (r *Router) HasMarkitdown() bool {
	return r.markitdown != nil
}

func (r *Router) pick(ext string) Converter {
	if ext == ".html" && (r.nativeHTML || r.markitdown == nil) {
		return r.html
	}
	return r.markitdown
}

// Convert validates path's extension, converts it with the chosen backend
// and guarantees a non-empty result. Every failure wraps one of
// types.ErrUnsupportedType, types.ErrFileSystem or types.ErrConversion.
func (r *Router) Convert(ctx context.Context, path string) (string, error) {
	if err := ValidateExtension(path); err != nil {
		return "", err
	}
	c := r.pick(Ext(path))
	if c == nil {
		return "", fmt.Errorf("%w: no markitdown backend available for %s files", types.ErrConversion, Ext(path))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := c.Convert(ctx, path)
	if err != nil {
		if errors.Is(err, types.ErrConversion) || errors.Is(err, types.ErrFileSystem) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", types.ErrConversion, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: %s produced empty output", types.ErrConversion, c.Name())
	}
	return out, nil
}
