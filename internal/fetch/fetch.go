// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads web content for URL-mode conversion.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/pdiddy/markitdown-ui/internal/httputil"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// defaultExt is used when the Content-Type does not name a supported format.
const defaultExt = ".html"

// contentTypeExt maps response media types to the extension the converter
// expects.
var contentTypeExt = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"text/csv":         ".csv",
	"application/json": ".json",
	"application/xml":  ".xml",
	"text/xml":         ".xml",
	"application/zip":  ".zip",
}

// Download is a fetched document stored in a temporary file.
type Download struct {
	// Path is the temporary file holding the body.
	Path string
	// ContentType is the media type reported by the server.
	ContentType string
	// Size is the number of bytes written.
	Size int64
}

// Cleanup removes the temporary file.
func (d Download) Cleanup() {
	if d.Path != "" {
		os.Remove(d.Path)
	}
}

// Fetcher downloads URLs into temporary files.
type Fetcher struct {
	client  *http.Client
	cfg     types.FetchConfig
	tempDir string
}

// New returns a Fetcher. A nil client gets one with cfg.Timeout. tempDir
// may be empty to use the system default.
func New(client *http.Client, cfg types.FetchConfig, tempDir string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{client: client, cfg: cfg, tempDir: tempDir}
}

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: Please enter a valid URL", types.ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q (want http or https)", types.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", types.ErrInvalidURL, raw)
	}
	return u, nil
}

// Fetch downloads rawURL into a temporary file whose extension follows the
// response Content-Type. Transport failures wrap types.ErrNetwork; HTTP
// error statuses and oversized bodies wrap types.ErrDownload. The caller
// owns the returned Download and must call Cleanup.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Download, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return Download{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Download{}, fmt.Errorf("%w: creating request: %v", types.ErrInvalidURL, err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, f.client, req, f.cfg.MaxRetries)
	if err != nil {
		return Download{}, fmt.Errorf("%w: Failed to download URL: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Download{}, fmt.Errorf("%w: Failed to download URL: HTTP %d from %s", types.ErrDownload, resp.StatusCode, u.Redacted())
	}

	contentType := resp.Header.Get("Content-Type")
	tmp, err := os.CreateTemp(f.tempDir, "markitdown-url-*"+extFor(contentType))
	if err != nil {
		return Download{}, fmt.Errorf("%w: creating temp file: %v", types.ErrFileSystem, err)
	}
	tmpPath := tmp.Name()

	body := io.Reader(resp.Body)
	if f.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	}
	n, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil:
		os.Remove(tmpPath)
		return Download{}, fmt.Errorf("%w: Failed to download URL: reading body: %v", types.ErrNetwork, copyErr)
	case closeErr != nil:
		os.Remove(tmpPath)
		return Download{}, fmt.Errorf("%w: closing temp file: %v", types.ErrFileSystem, closeErr)
	case f.cfg.MaxBytes > 0 && n > f.cfg.MaxBytes:
		os.Remove(tmpPath)
		return Download{}, fmt.Errorf("%w: response larger than %d bytes", types.ErrDownload, f.cfg.MaxBytes)
	}

	return Download{Path: tmpPath, ContentType: contentType, Size: n}, nil
}

func extFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultExt
	}
	if ext, ok := contentTypeExt[strings.ToLower(mt)]; ok {
		return ext
	}
	return defaultExt
}
