// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/markitdown-ui/internal/fetch"
	"github.com/pdiddy/markitdown-ui/internal/output"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// recordingConverter renders "# <basename>" and records the order of calls.
// When gate is set, each call signals started and waits for gate to close.
type recordingConverter struct {
	mu      sync.Mutex
	names   []string
	output  string
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (c *recordingConverter) Name() string { return "recording" }

func (c *recordingConverter) Convert(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	c.names = append(c.names, filepath.Base(path))
	c.mu.Unlock()
	if c.gate != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.err != nil {
		return "", c.err
	}
	if c.output != "" {
		return c.output, nil
	}
	return "# " + filepath.Base(path), nil
}

func (c *recordingConverter) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

// fakeFetcher writes body to a temp file, optionally waiting on gate.
type fakeFetcher struct {
	dir     string
	body    string
	err     error
	started chan struct{}
	gate    chan struct{}
	lastDL  fetch.Download
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (fetch.Download, error) {
	if f.gate != nil {
		f.started <- struct{}{}
		<-f.gate
	}
	if f.err != nil {
		return fetch.Download{}, f.err
	}
	path := filepath.Join(f.dir, "download.html")
	if err := os.WriteFile(path, []byte(f.body), 0o644); err != nil {
		return fetch.Download{}, err
	}
	f.lastDL = fetch.Download{Path: path, ContentType: "text/html", Size: int64(len(f.body))}
	return f.lastDL, nil
}

func newTestManager(t *testing.T, conv *recordingConverter, fetcher Fetcher, fs afero.Fs) *Manager {
	t.Helper()
	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	m, err := New(Options{
		Converter:  conv,
		Fetcher:    fetcher,
		Writer:     output.NewWriter(fs, false),
		MaxBatches: 2,
		SessionTTL: time.Hour,
		TempDir:    t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func uploads(names ...string) []Upload {
	out := make([]Upload, len(names))
	for i, n := range names {
		out[i] = Upload{Name: n, Body: strings.NewReader("bytes of " + n)}
	}
	return out
}

// collect subscribes to a batch and returns its events up to and including
// the done event.
func collect(t *testing.T, m *Manager, sessionID, batchID string) []types.Event {
	t.Helper()
	ch, unsubscribe, err := m.Subscribe(sessionID, batchID)
	require.NoError(t, err)
	defer unsubscribe()

	var events []types.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.Type == types.EventDone {
				return events
			}
		case <-timeout:
			t.Fatalf("batch %s did not finish; got %d events", batchID, len(events))
		}
	}
}

func progressOf(events []types.Event) []types.Event {
	var out []types.Event
	for _, ev := range events {
		if ev.Type == types.EventProgress {
			out = append(out, types.Event{Type: ev.Type, Progress: ev.Progress, Description: ev.Description})
		}
	}
	return out
}

func TestNew_RequiresConverter(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestSubmitFiles_ConvertsSequentially(t *testing.T) {
	ctx := context.Background()
	conv := &recordingConverter{}
	m := newTestManager(t, conv, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf", "notes.txt", `C:\docs\c.DOCX`))
	require.NoError(t, err)
	require.Len(t, batch.JobIDs, 3)
	assert.Equal(t, types.SourceFile, batch.Kind)

	events := collect(t, m, "s1", batch.ID)
	assert.Equal(t, types.EventDone, events[len(events)-1].Type)

	assert.Equal(t, []string{"a.pdf", "c.DOCX"}, conv.calls(), "unsupported files are never converted")

	list, err := m.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, types.StatusSucceeded, list[0].Status)
	assert.Equal(t, "# a.pdf", list[0].Result)
	assert.Equal(t, 2, list[0].WordCount)
	assert.Equal(t, "a.md", list[0].SuggestedName)
	assert.Empty(t, list[0].Error)

	assert.Equal(t, types.StatusFailed, list[1].Status)
	assert.Equal(t, types.CategoryInvalidFileType, list[1].ErrorCategory)
	assert.Contains(t, list[1].Error, ".txt files not supported")
	assert.Empty(t, list[1].Result)

	assert.Equal(t, types.StatusSucceeded, list[2].Status)
	assert.Equal(t, "c.DOCX", list[2].DisplayName)
	assert.Equal(t, "c.md", list[2].SuggestedName)

	entries, err := os.ReadDir(m.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged uploads are removed once the batch finishes")
}

func TestSubmitFiles_ProgressEvents(t *testing.T) {
	ctx := context.Background()
	conv := &recordingConverter{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := newTestManager(t, conv, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf", "b.pdf"))
	require.NoError(t, err)

	<-conv.started
	ch, unsubscribe, err := m.Subscribe("s1", batch.ID)
	require.NoError(t, err)
	defer unsubscribe()
	close(conv.gate)

	var events []types.Event
	for ev := range ch {
		events = append(events, ev)
		if ev.Type == types.EventDone {
			break
		}
	}

	assert.Equal(t, []types.Event{
		{Type: types.EventProgress, Progress: 0, Description: "Converting a.pdf"},
		{Type: types.EventProgress, Progress: 0.5, Description: "Converting b.pdf"},
		{Type: types.EventProgress, Progress: 1},
	}, progressOf(events))

	var finished []string
	for _, ev := range events {
		assert.Equal(t, batch.ID, ev.BatchID)
		if ev.Type == types.EventJob && ev.Job.Status.Terminal() {
			finished = append(finished, ev.Job.DisplayName)
		}
	}
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, finished)
}

func TestSubmitFiles_NoFiles(t *testing.T) {
	m := newTestManager(t, &recordingConverter{}, nil, nil)
	_, err := m.SubmitFiles(context.Background(), "s1", nil)
	require.ErrorIs(t, err, types.ErrNoInput)
}

func TestSubmitFiles_ConversionFailures(t *testing.T) {
	tests := []struct {
		name         string
		conv         *recordingConverter
		wantCategory string
	}{
		{
			name:         "backend error",
			conv:         &recordingConverter{err: fmt.Errorf("%w: bad zip", types.ErrConversion)},
			wantCategory: types.CategoryConversionError,
		},
		{
			name:         "empty output",
			conv:         &recordingConverter{output: " \n "},
			wantCategory: types.CategoryConversionError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := newTestManager(t, tt.conv, nil, nil)

			batch, err := m.SubmitFiles(ctx, "s1", uploads("a.zip"))
			require.NoError(t, err)
			collect(t, m, "s1", batch.ID)

			job, err := m.Job(ctx, "s1", batch.JobIDs[0])
			require.NoError(t, err)
			assert.Equal(t, types.StatusFailed, job.Status)
			assert.Equal(t, tt.wantCategory, job.ErrorCategory)
			assert.NotEmpty(t, job.Error)
			assert.Empty(t, job.Result)
		})
	}
}

func TestSubmitURL_Converts(t *testing.T) {
	ctx := context.Background()
	conv := &recordingConverter{output: "# Page\n\nHello world"}
	fetcher := &fakeFetcher{dir: t.TempDir(), body: "<h1>Page</h1>", started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := newTestManager(t, conv, fetcher, nil)

	batch, err := m.SubmitURL(ctx, "s1", " https://example.com/docs/page.html ")
	require.NoError(t, err)
	assert.Equal(t, types.SourceURL, batch.Kind)

	<-fetcher.started
	ch, unsubscribe, err := m.Subscribe("s1", batch.ID)
	require.NoError(t, err)
	defer unsubscribe()
	close(fetcher.gate)

	var events []types.Event
	for ev := range ch {
		events = append(events, ev)
		if ev.Type == types.EventDone {
			break
		}
	}
	assert.Equal(t, []types.Event{
		{Type: types.EventProgress, Progress: 0.2, Description: "Downloading webpage content"},
		{Type: types.EventProgress, Progress: 0.6, Description: "Converting to markdown"},
		{Type: types.EventProgress, Progress: 1},
	}, progressOf(events))

	job, err := m.Job(ctx, "s1", batch.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, job.Status)
	assert.Equal(t, "https://example.com/docs/page.html", job.DisplayName)
	assert.Equal(t, "page.md", job.SuggestedName)
	assert.Equal(t, 4, job.WordCount)

	_, err = os.Stat(fetcher.lastDL.Path)
	assert.True(t, os.IsNotExist(err), "download is cleaned up")
}

func TestSubmitURL_Invalid(t *testing.T) {
	m := newTestManager(t, &recordingConverter{}, &fakeFetcher{dir: t.TempDir()}, nil)
	for _, raw := range []string{"", "  ", "ftp://example.com/file", "not a url"} {
		_, err := m.SubmitURL(context.Background(), "s1", raw)
		assert.ErrorIs(t, err, types.ErrInvalidURL, raw)
	}
	list, err := m.List(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitURL_NetworkFailure(t *testing.T) {
	ctx := context.Background()
	conv := &recordingConverter{}
	fetcher := &fakeFetcher{err: fmt.Errorf("%w: Failed to download URL: connection refused", types.ErrNetwork)}
	m := newTestManager(t, conv, fetcher, nil)

	batch, err := m.SubmitURL(ctx, "s1", "https://unreachable.invalid/")
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)

	job, err := m.Job(ctx, "s1", batch.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, job.Status)
	assert.Equal(t, types.CategoryNetworkError, job.ErrorCategory)
	assert.Contains(t, job.Error, "Failed to download URL")
	assert.Equal(t, "webpage.md", job.SuggestedName)
	assert.Empty(t, conv.calls())
}

func TestSave_WritesOnceThenDiscards(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	m := newTestManager(t, &recordingConverter{output: "# Report"}, nil, fs)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("report.pdf"))
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)
	id := batch.JobIDs[0]

	_, err = m.Save(ctx, "s1", id, types.OutputLocation{}, output.SaveOptions{})
	require.ErrorIs(t, err, types.ErrNoLocation)
	_, err = m.Job(ctx, "s1", id)
	require.NoError(t, err, "a failed save keeps the job")

	res, err := m.Save(ctx, "s1", id, types.OutputLocation{Directory: "/home/u/Documents"}, output.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/home/u/Documents/report.md", res.Path)

	data, err := afero.ReadFile(fs, res.Path)
	require.NoError(t, err)
	assert.Equal(t, "# Report", string(data))

	_, err = m.Save(ctx, "s1", id, types.OutputLocation{Directory: "/elsewhere"}, output.SaveOptions{})
	require.ErrorIs(t, err, types.ErrNotFound)
	exists, _ := afero.Exists(fs, "/elsewhere/report.md")
	assert.False(t, exists)
}

func TestSave_FailedJobIsNotReady(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &recordingConverter{}, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("notes.txt"))
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)

	_, err = m.Save(ctx, "s1", batch.JobIDs[0], types.OutputLocation{Directory: "/out"}, output.SaveOptions{})
	require.ErrorIs(t, err, types.ErrNotReady)
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &recordingConverter{}, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf"))
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)

	_, err = m.Job(ctx, "s2", batch.JobIDs[0])
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, m.Discard(ctx, "s2", batch.JobIDs[0]), types.ErrNotFound)
	_, _, err = m.Subscribe("s2", batch.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	list, err := m.List(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &recordingConverter{}, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf", "b.pdf"))
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)

	require.NoError(t, m.Discard(ctx, "s1", batch.JobIDs[0]))
	list, err := m.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, batch.JobIDs[1], list[0].ID)
}

func TestSubscribe_AfterDone(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &recordingConverter{}, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf"))
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)

	events := collect(t, m, "s1", batch.ID)
	require.Len(t, events, 2)
	assert.Equal(t, types.Event{Type: types.EventProgress, BatchID: batch.ID, Progress: 1}, events[0])
	assert.Equal(t, types.EventDone, events[1].Type)

	_, _, err = m.Subscribe("s1", "unknown")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &recordingConverter{}, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf", "b.pdf"))
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)
	other, err := m.SubmitFiles(ctx, "s2", uploads("c.pdf"))
	require.NoError(t, err)
	collect(t, m, "s2", other.ID)

	n, err := m.EndSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, _ := m.List(ctx, "s1")
	assert.Empty(t, list)
	list, _ = m.List(ctx, "s2")
	assert.Len(t, list, 1)

	_, _, err = m.Subscribe("s1", batch.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestEndSession_CancelsRunningBatch(t *testing.T) {
	ctx := context.Background()
	conv := &recordingConverter{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := newTestManager(t, conv, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf", "b.pdf"))
	require.NoError(t, err)
	<-conv.started

	ch, unsubscribe, err := m.Subscribe("s1", batch.ID)
	require.NoError(t, err)
	defer unsubscribe()

	_, err = m.EndSession(ctx, "s1")
	require.NoError(t, err)

	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-ch:
			done = ev.Type == types.EventDone
		case <-timeout:
			t.Fatal("cancelled batch never finished")
		}
	}
	assert.Equal(t, []string{"a.pdf"}, conv.calls())
}

func TestPurgeIdle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &recordingConverter{}, nil, nil)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	batch, err := m.SubmitFiles(ctx, "idle", uploads("a.pdf"))
	require.NoError(t, err)
	collect(t, m, "idle", batch.ID)

	require.NoError(t, m.store.Touch(ctx, "active", base.Add(50*time.Minute)))

	m.now = func() time.Time { return base.Add(61 * time.Minute) }
	assert.Equal(t, 1, m.purgeIdle(ctx))

	list, err := m.store.List(ctx, "idle")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClose_CancelsRunningBatches(t *testing.T) {
	conv := &recordingConverter{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m, err := New(Options{Converter: conv, MaxBatches: 1, TempDir: t.TempDir()})
	require.NoError(t, err)

	_, err = m.SubmitFiles(context.Background(), "s1", uploads("a.pdf"))
	require.NoError(t, err)
	<-conv.started

	closed := make(chan error, 1)
	go func() { closed <- m.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.True(t, errors.Is(m.ctx.Err(), context.Canceled))
}

func hasBatch(m *Manager, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.batches[id]
	return ok
}

func TestMaxBatchesBoundsConcurrentBatches(t *testing.T) {
	ctx := context.Background()
	conv := &recordingConverter{started: make(chan struct{}, 3), gate: make(chan struct{})}
	m := newTestManager(t, conv, nil, nil)

	var batches []types.Batch
	for _, session := range []string{"s1", "s2", "s3"} {
		b, err := m.SubmitFiles(ctx, session, uploads(session+".pdf"))
		require.NoError(t, err)
		batches = append(batches, b)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-conv.started:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d batches started", i)
		}
	}
	select {
	case <-conv.started:
		t.Fatal("a third batch converted while two were running")
	case <-time.After(100 * time.Millisecond):
	}

	counts := map[types.JobStatus]int{}
	for _, b := range batches {
		job, err := m.Job(ctx, b.SessionID, b.JobIDs[0])
		require.NoError(t, err)
		counts[job.Status]++
	}
	assert.Equal(t, map[types.JobStatus]int{types.StatusRunning: 2, types.StatusPending: 1}, counts)

	close(conv.gate)
	for _, b := range batches {
		collect(t, m, b.SessionID, b.ID)
	}
	assert.Len(t, conv.calls(), 3)
}

func TestFinishedBatchIsForgottenOnceDrained(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &recordingConverter{}, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf", "b.pdf"))
	require.NoError(t, err)
	collect(t, m, "s1", batch.ID)
	require.True(t, hasBatch(m, batch.ID))

	_, err = m.Save(ctx, "s1", batch.JobIDs[0], types.OutputLocation{Directory: "/out"}, output.SaveOptions{})
	require.NoError(t, err)
	assert.True(t, hasBatch(m, batch.ID), "one job is still stored")

	require.NoError(t, m.Discard(ctx, "s1", batch.JobIDs[1]))
	assert.False(t, hasBatch(m, batch.ID))
	_, _, err = m.Subscribe("s1", batch.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBatchDrainedWhileRunningIsForgotten(t *testing.T) {
	ctx := context.Background()
	conv := &recordingConverter{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := newTestManager(t, conv, nil, nil)

	batch, err := m.SubmitFiles(ctx, "s1", uploads("a.pdf"))
	require.NoError(t, err)
	<-conv.started

	require.NoError(t, m.Discard(ctx, "s1", batch.JobIDs[0]))
	assert.True(t, hasBatch(m, batch.ID), "running batches are kept")

	close(conv.gate)
	assert.Eventually(t, func() bool { return !hasBatch(m, batch.ID) }, 5*time.Second, 10*time.Millisecond)
}
