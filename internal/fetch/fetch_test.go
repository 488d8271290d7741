// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/markitdown-ui/internal/httputil"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func testConfig() types.FetchConfig {
	return types.FetchConfig{
		Timeout:    5 * time.Second,
		UserAgent:  "markitdown-ui-test",
		MaxRetries: 1,
		MaxBytes:   1 << 10,
	}
}

func TestFetch_HTMLPage(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Hello</h1>"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	f := New(ts.Client(), testConfig(), dir)

	dl, err := f.Fetch(context.Background(), ts.URL+"/page")
	require.NoError(t, err)

	assert.Equal(t, "markitdown-ui-test", gotUA)
	assert.Equal(t, dir, filepath.Dir(dl.Path))
	assert.Equal(t, ".html", filepath.Ext(dl.Path))
	assert.Equal(t, int64(14), dl.Size)

	data, err := os.ReadFile(dl.Path)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1>", string(data))

	dl.Cleanup()
	_, err = os.Stat(dl.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestFetch_ExtensionFollowsContentType(t *testing.T) {
	tests := []struct {
		contentType string
		wantExt     string
	}{
		{"application/pdf", ".pdf"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx"},
		{"text/csv; charset=utf-8", ".csv"},
		{"text/plain", ".html"},
		{"", ".html"},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				_, _ = w.Write([]byte("x"))
			}))
			defer ts.Close()

			dl, err := New(ts.Client(), testConfig(), t.TempDir()).Fetch(context.Background(), ts.URL)
			require.NoError(t, err)
			defer dl.Cleanup()
			assert.Equal(t, tt.wantExt, filepath.Ext(dl.Path))
		})
	}
}

func TestFetch_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer ts.Close()

	_, err := New(ts.Client(), testConfig(), t.TempDir()).Fetch(context.Background(), ts.URL+"/missing")
	require.ErrorIs(t, err, types.ErrDownload)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Equal(t, types.CategoryDownloadFailed, types.ErrorCategory(err))
}

func TestFetch_UnreachableHost(t *testing.T) {
	// Grab a free port, then close the listener so nothing answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = New(nil, testConfig(), t.TempDir()).Fetch(context.Background(), "http://"+addr+"/")
	require.ErrorIs(t, err, types.ErrNetwork)
	assert.Contains(t, err.Error(), "Failed to download URL")
	assert.Equal(t, types.CategoryNetworkError, types.ErrorCategory(err))
}

func TestFetch_TooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer ts.Close()

	dir := t.TempDir()
	_, err := New(ts.Client(), testConfig(), dir).Fetch(context.Background(), ts.URL)
	require.ErrorIs(t, err, types.ErrDownload)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be removed")
}

func TestFetch_RetriesRateLimit(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer ts.Close()

	dl, err := New(ts.Client(), testConfig(), t.TempDir()).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	defer dl.Cleanup()
	assert.Equal(t, 2, calls)
}

func TestValidateURL(t *testing.T) {
	for _, bad := range []string{"", "   ", "ftp://example.com/a", "example.com/page", "http://"} {
		_, err := ValidateURL(bad)
		assert.ErrorIs(t, err, types.ErrInvalidURL, bad)
	}
	u, err := ValidateURL(" https://example.com/a?b=c ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Host)
}
