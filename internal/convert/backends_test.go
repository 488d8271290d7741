// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

func TestMarkitdownBinary_Convert(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "sheet.xlsx", "xlsx bytes")

	tests := []struct {
		name    string
		run     commandRunner
		want    string
		wantErr string
	}{
		{
			name: "stdout becomes markdown",
			run: func(_ context.Context, name string, args []string, stdout, _ io.Writer) error {
				assert.Equal(t, "/usr/local/bin/markitdown", name)
				assert.Equal(t, []string{src}, args)
				_, _ = io.WriteString(stdout, "\n| a | b |\n|---|---|\n")
				return nil
			},
			want: "| a | b |\n|---|---|",
		},
		{
			name: "stderr last line reported",
			run: func(_ context.Context, _ string, _ []string, _, stderr io.Writer) error {
				_, _ = io.WriteString(stderr, "Traceback (most recent call last):\n  ...\nFileConversionException: bad zip\n")
				return errors.New("exit status 1")
			},
			wantErr: "FileConversionException: bad zip",
		},
		{
			name: "empty output",
			run: func(context.Context, string, []string, io.Writer, io.Writer) error {
				return nil
			},
			wantErr: "empty output",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &MarkitdownBinary{path: "/usr/local/bin/markitdown", run: tt.run}
			out, err := b.Convert(context.Background(), src)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, types.ErrConversion)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestMarkitdownBinary_MissingFile(t *testing.T) {
	b := &MarkitdownBinary{path: "markitdown", run: func(context.Context, string, []string, io.Writer, io.Writer) error {
		t.Fatal("must not run for a missing file")
		return nil
	}}
	_, err := b.Convert(context.Background(), "/nonexistent/x.pdf")
	require.ErrorIs(t, err, types.ErrFileSystem)
}

// fakeRuntime implements container.Runtime.
type fakeRuntime struct {
	imageErr error
	runErr   error
	output   string
	gotArgs  []string
	gotStdin string
}

func (f *fakeRuntime) Name() string { return "docker" }

func (f *fakeRuntime) Available(context.Context) bool { return true }

func (f *fakeRuntime) ImageExists(context.Context, string) error { return f.imageErr }

func (f *fakeRuntime) Run(_ context.Context, _ string, args []string, stdin io.Reader, stdout io.Writer) error {
	f.gotArgs = args
	data, _ := io.ReadAll(stdin)
	f.gotStdin = string(data)
	if f.runErr != nil {
		return f.runErr
	}
	_, err := io.WriteString(stdout, f.output)
	return err
}

func TestMarkitdownContainer(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "deck.PPTX", "pptx bytes")
	ctx := context.Background()

	rt := &fakeRuntime{output: "# Slide 1"}
	c, err := NewMarkitdownContainer(ctx, rt, "markitdown:latest")
	require.NoError(t, err)
	assert.Equal(t, "docker:markitdown:latest", c.Name())

	out, err := c.Convert(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "# Slide 1", out)
	assert.Equal(t, []string{"-x", "pptx"}, rt.gotArgs)
	assert.Equal(t, "pptx bytes", rt.gotStdin)

	rt.output = ""
	_, err = c.Convert(ctx, src)
	require.ErrorIs(t, err, types.ErrConversion)

	rt.runErr = errors.New("exit status 125")
	_, err = c.Convert(ctx, src)
	require.ErrorIs(t, err, types.ErrConversion)

	_, err = c.Convert(ctx, "/nonexistent/a.pdf")
	require.ErrorIs(t, err, types.ErrFileSystem)
}

func TestMarkitdownContainer_MissingImage(t *testing.T) {
	_, err := NewMarkitdownContainer(context.Background(), &fakeRuntime{imageErr: errors.New("no such image")}, "markitdown:latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markitdown image not available in docker")
}

func TestHTMLConverter(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	page := writeFile(t, dir, "page.html", `<html><body><h2>Install</h2><ul><li>one</li><li>two</li></ul><a href="https://go.dev">Go</a></body></html>`)
	out, err := HTMLConverter{}.Convert(ctx, page)
	require.NoError(t, err)
	assert.Contains(t, out, "## Install")
	assert.Contains(t, out, "- one")
	assert.Contains(t, out, "[Go](https://go.dev)")

	empty := writeFile(t, dir, "empty.html", "<html><body>   </body></html>")
	_, err = HTMLConverter{}.Convert(ctx, empty)
	require.ErrorIs(t, err, types.ErrConversion)

	_, err = HTMLConverter{}.Convert(ctx, dir+"/missing.html")
	require.ErrorIs(t, err, types.ErrFileSystem)
}
