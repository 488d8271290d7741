// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs runs conversion batches for browser sessions. Each
// submission becomes a batch whose jobs are converted one after another in
// submission order, publishing progress events to subscribers. Job state
// lives in memory only.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/markitdown-ui/internal/convert"
	"github.com/pdiddy/markitdown-ui/internal/fetch"
	"github.com/pdiddy/markitdown-ui/internal/logx"
	"github.com/pdiddy/markitdown-ui/internal/metrics"
	"github.com/pdiddy/markitdown-ui/internal/output"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// Progress descriptions published for URL batches.
const (
	descDownloading = "Downloading webpage content"
	descConverting  = "Converting to markdown"
)

// subscriberBuffer is the event backlog a subscriber may fall behind by
// before progress events are dropped for it.
const subscriberBuffer = 32

// Fetcher downloads a URL into a temporary file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetch.Download, error)
}

// Upload is one file submitted by a user.
type Upload struct {
	// Name is the original filename as provided by the browser.
	Name string
	Body io.Reader
}

// Options configures a Manager.
type Options struct {
	Converter convert.Converter
	Fetcher   Fetcher
	Writer    *output.Writer
	Store     Store

	// MaxBatches bounds how many batches convert at once.
	MaxBatches int
	// SessionTTL is how long an idle session keeps its jobs. Zero disables
	// the janitor.
	SessionTTL time.Duration
	// TempDir is where uploads are staged. Empty means the system default.
	TempDir string
}

type batchState struct {
	batch  types.Batch
	dir    string
	cancel context.CancelFunc
	last   *types.Event
	done   bool
	ended  bool
	subs   map[chan types.Event]struct{}
}

// Manager owns jobs, batches and their subscribers.
type Manager struct {
	conv    convert.Converter
	fetcher Fetcher
	writer  *output.Writer
	store   Store
	sem     *semaphore.Weighted
	ttl     time.Duration
	tempDir string
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu      sync.Mutex
	batches map[string]*batchState

	// saveMu serialises save-then-discard so a job is written once.
	saveMu sync.Mutex
}

// New returns a Manager and starts its janitor.
func New(opts Options) (*Manager, error) {
	if opts.Converter == nil {
		return nil, fmt.Errorf("jobs: converter is required")
	}
	if opts.Store == nil {
		st, err := NewMemoryStore()
		if err != nil {
			return nil, err
		}
		opts.Store = st
	}
	if opts.Writer == nil {
		opts.Writer = output.NewWriter(nil, false)
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = 1
	}
	tempDir, err := os.MkdirTemp(opts.TempDir, "markitdown-ui-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating upload directory: %v", types.ErrFileSystem, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		conv:    opts.Converter,
		fetcher: opts.Fetcher,
		writer:  opts.Writer,
		store:   opts.Store,
		sem:     semaphore.NewWeighted(int64(opts.MaxBatches)),
		ttl:     opts.SessionTTL,
		tempDir: tempDir,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		batches: make(map[string]*batchState),
	}
	if m.ttl > 0 {
		m.wg.Go(m.janitor)
	}
	return m, nil
}

// Close cancels running batches, waits for them and releases the store.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	os.RemoveAll(m.tempDir)
	return m.store.Close()
}

// SubmitFiles creates one job per upload and schedules the batch. Files of
// unsupported types fail immediately and are never converted.
func (m *Manager) SubmitFiles(ctx context.Context, sessionID string, uploads []Upload) (types.Batch, error) {
	if len(uploads) == 0 {
		return types.Batch{}, fmt.Errorf("%w: Please upload at least one file", types.ErrNoInput)
	}
	batch := types.Batch{ID: uuid.NewString(), SessionID: sessionID, Kind: types.SourceFile}

	dir, err := os.MkdirTemp(m.tempDir, "batch-*")
	if err != nil {
		return types.Batch{}, fmt.Errorf("%w: creating batch directory: %v", types.ErrFileSystem, err)
	}

	for i, up := range uploads {
		name := filepath.Base(strings.ReplaceAll(up.Name, `\`, "/"))
		job := m.newJob(batch, types.SourceFile, name)
		job.SuggestedName = convert.SuggestName(name)

		if err := convert.ValidateExtension(name); err != nil {
			m.fail(job, err)
			metrics.JobRejected(string(job.Kind), job.ErrorCategory)
		} else if path, err := stage(dir, i, name, up.Body); err != nil {
			m.fail(job, err)
			metrics.JobRejected(string(job.Kind), job.ErrorCategory)
		} else {
			job.Source = path
		}

		if err := m.store.Create(ctx, job); err != nil {
			os.RemoveAll(dir)
			return types.Batch{}, err
		}
		batch.JobIDs = append(batch.JobIDs, job.ID)
	}

	if err := m.store.Touch(ctx, sessionID, m.now()); err != nil {
		logx.Log.Warn().Err(err).Str("session", sessionID).Msg("touching session")
	}
	m.start(batch, dir)
	return batch, nil
}

// SubmitURL creates a single-job batch that downloads and converts rawURL.
func (m *Manager) SubmitURL(ctx context.Context, sessionID, rawURL string) (types.Batch, error) {
	if _, err := fetch.ValidateURL(rawURL); err != nil {
		return types.Batch{}, err
	}
	if m.fetcher == nil {
		return types.Batch{}, fmt.Errorf("%w: URL conversion is not configured", types.ErrNetwork)
	}
	rawURL = strings.TrimSpace(rawURL)
	batch := types.Batch{ID: uuid.NewString(), SessionID: sessionID, Kind: types.SourceURL}

	job := m.newJob(batch, types.SourceURL, rawURL)
	job.Source = rawURL
	job.SuggestedName = convert.SuggestURLName(rawURL)
	if err := m.store.Create(ctx, job); err != nil {
		return types.Batch{}, err
	}
	batch.JobIDs = []string{job.ID}

	if err := m.store.Touch(ctx, sessionID, m.now()); err != nil {
		logx.Log.Warn().Err(err).Str("session", sessionID).Msg("touching session")
	}
	m.start(batch, "")
	return batch, nil
}

// Job returns a job of the session, or an error wrapping types.ErrNotFound.
func (m *Manager) Job(ctx context.Context, sessionID, id string) (*types.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.SessionID != sessionID {
		return nil, fmt.Errorf("%w: job %s", types.ErrNotFound, id)
	}
	m.touch(ctx, sessionID)
	return job, nil
}

// List returns the session's jobs in submission order.
func (m *Manager) List(ctx context.Context, sessionID string) ([]*types.Job, error) {
	m.touch(ctx, sessionID)
	return m.store.List(ctx, sessionID)
}

// Discard removes a job without saving it.
func (m *Manager) Discard(ctx context.Context, sessionID, id string) error {
	job, err := m.Job(ctx, sessionID, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.forgetDrained(job.BatchID)
	return nil
}

// Save writes a succeeded job to loc and discards it. A job is saved at
// most once; a second call reports types.ErrNotFound.
func (m *Manager) Save(ctx context.Context, sessionID, id string, loc types.OutputLocation, opts output.SaveOptions) (output.SaveResult, error) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	job, err := m.Job(ctx, sessionID, id)
	if err != nil {
		return output.SaveResult{}, err
	}
	res, err := m.writer.Save(job, loc, opts)
	if err != nil {
		return output.SaveResult{}, err
	}
	metrics.OutputSaved(res.Size)
	if err := m.store.Delete(ctx, id); err != nil {
		logx.Log.Warn().Err(err).Str("job", id).Msg("discarding saved job")
	}
	m.forgetDrained(job.BatchID)
	logx.Log.Info().Str("job", id).Str("path", res.Path).Int64("bytes", res.Size).Msg("saved output")
	return res, nil
}

// EndSession cancels the session's running batches and discards its jobs.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	for id, st := range m.batches {
		if st.batch.SessionID != sessionID {
			continue
		}
		st.cancel()
		st.ended = true
		if st.done {
			delete(m.batches, id)
		}
	}
	m.mu.Unlock()
	return m.store.DeleteSession(ctx, sessionID)
}

// Subscribe returns a channel of events for a batch and a function that
// ends the subscription. The latest progress event is replayed, and a
// finished batch yields its done event straight away.
func (m *Manager) Subscribe(sessionID, batchID string) (<-chan types.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.batches[batchID]
	if st == nil || st.batch.SessionID != sessionID {
		return nil, nil, fmt.Errorf("%w: batch %s", types.ErrNotFound, batchID)
	}
	ch := make(chan types.Event, subscriberBuffer)
	if st.last != nil {
		ch <- *st.last
	}
	if st.done {
		ch <- types.Event{Type: types.EventDone, BatchID: batchID, Progress: 1}
	}
	st.subs[ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(st.subs, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe, nil
}

func (m *Manager) newJob(batch types.Batch, kind types.SourceKind, displayName string) *types.Job {
	now := m.now()
	return &types.Job{
		ID:          uuid.NewString(),
		SessionID:   batch.SessionID,
		BatchID:     batch.ID,
		Kind:        kind,
		DisplayName: displayName,
		Status:      types.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (m *Manager) start(batch types.Batch, dir string) {
	ctx, cancel := context.WithCancel(m.ctx)
	st := &batchState{
		batch:  batch,
		dir:    dir,
		cancel: cancel,
		subs:   make(map[chan types.Event]struct{}),
	}
	m.mu.Lock()
	m.batches[batch.ID] = st
	m.mu.Unlock()

	logx.Log.Debug().Str("batch", batch.ID).Str("kind", string(batch.Kind)).Int("jobs", len(batch.JobIDs)).Msg("batch submitted")
	m.wg.Go(func() { m.run(ctx, st) })
}

func (m *Manager) run(ctx context.Context, st *batchState) {
	defer st.cancel()
	defer m.finishBatch(st)
	if st.dir != "" {
		defer os.RemoveAll(st.dir)
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.abandon(st, err)
		return
	}
	defer m.sem.Release(1)

	switch st.batch.Kind {
	case types.SourceURL:
		m.runURL(ctx, st)
	default:
		m.runFiles(ctx, st)
	}
}

func (m *Manager) runFiles(ctx context.Context, st *batchState) {
	total := len(st.batch.JobIDs)
	for i, id := range st.batch.JobIDs {
		job, err := m.store.Get(context.Background(), id)
		if err != nil {
			continue
		}
		if job.Status.Terminal() {
			m.publish(st, types.Event{Type: types.EventJob, Job: job.Clone()})
			continue
		}
		if ctx.Err() != nil {
			m.finish(job, "", fmt.Errorf("%w: cancelled", types.ErrConversion))
			m.publish(st, types.Event{Type: types.EventJob, Job: job.Clone()})
			continue
		}
		m.publish(st, types.Event{
			Type:        types.EventProgress,
			Progress:    float64(i) / float64(total),
			Description: "Converting " + job.DisplayName,
		})
		m.convertJob(ctx, st, job, job.Source)
	}
}

func (m *Manager) runURL(ctx context.Context, st *batchState) {
	job, err := m.store.Get(context.Background(), st.batch.JobIDs[0])
	if err != nil {
		return
	}
	m.publish(st, types.Event{Type: types.EventProgress, Progress: 0.2, Description: descDownloading})
	m.markRunning(st, job)

	start := m.now()
	dl, err := m.fetcher.Fetch(ctx, job.Source)
	if err != nil {
		m.finish(job, "", err)
		metrics.JobEnd(string(job.Kind), job.ErrorCategory, m.now().Sub(start))
		m.publish(st, types.Event{Type: types.EventJob, Job: job.Clone()})
		return
	}
	defer dl.Cleanup()

	m.publish(st, types.Event{Type: types.EventProgress, Progress: 0.6, Description: descConverting})
	md, err := m.conv.Convert(ctx, dl.Path)
	m.finish(job, md, err)
	metrics.JobEnd(string(job.Kind), job.ErrorCategory, m.now().Sub(start))
	m.publish(st, types.Event{Type: types.EventJob, Job: job.Clone()})
}

func (m *Manager) convertJob(ctx context.Context, st *batchState, job *types.Job, path string) {
	m.markRunning(st, job)
	start := m.now()
	md, err := m.conv.Convert(ctx, path)
	m.finish(job, md, err)
	metrics.JobEnd(string(job.Kind), job.ErrorCategory, m.now().Sub(start))
	m.publish(st, types.Event{Type: types.EventJob, Job: job.Clone()})
}

func (m *Manager) markRunning(st *batchState, job *types.Job) {
	job.Status = types.StatusRunning
	job.UpdatedAt = m.now()
	m.save(job)
	metrics.JobStart()
	m.publish(st, types.Event{Type: types.EventJob, Job: job.Clone()})
}

// finish moves job to its terminal state. Empty Markdown is a failure.
func (m *Manager) finish(job *types.Job, md string, err error) {
	if err == nil && strings.TrimSpace(md) == "" {
		err = fmt.Errorf("%w: %s produced empty output", types.ErrConversion, job.DisplayName)
	}
	if err != nil {
		m.fail(job, err)
		logx.Log.Warn().Str("job", job.ID).Str("source", job.DisplayName).Str("category", job.ErrorCategory).Err(err).Msg("conversion failed")
	} else {
		job.Status = types.StatusSucceeded
		job.Result = md
		job.WordCount = convert.WordCount(md)
		job.UpdatedAt = m.now()
		logx.Log.Info().Str("job", job.ID).Str("source", job.DisplayName).Int("words", job.WordCount).Msg("converted")
	}
	m.save(job)
}

func (m *Manager) fail(job *types.Job, err error) {
	job.Status = types.StatusFailed
	job.Result = ""
	job.WordCount = 0
	job.Error = err.Error()
	job.ErrorCategory = types.ErrorCategory(err)
	job.UpdatedAt = m.now()
}

// save persists job; a job discarded mid-run is not an error.
func (m *Manager) save(job *types.Job) {
	if err := m.store.Update(context.Background(), job); err != nil {
		logx.Log.Debug().Err(err).Str("job", job.ID).Msg("job no longer stored")
	}
}

// abandon fails every unfinished job of a batch that never started.
func (m *Manager) abandon(st *batchState, cause error) {
	for _, id := range st.batch.JobIDs {
		job, err := m.store.Get(context.Background(), id)
		if err != nil || job.Status.Terminal() {
			continue
		}
		m.finish(job, "", fmt.Errorf("%w: batch cancelled: %v", types.ErrConversion, cause))
		m.publish(st, types.Event{Type: types.EventJob, Job: job.Clone()})
	}
}

func (m *Manager) finishBatch(st *batchState) {
	m.publish(st, types.Event{Type: types.EventProgress, Progress: 1})
	m.publish(st, types.Event{Type: types.EventDone, Progress: 1})
	m.mu.Lock()
	ended := st.ended
	if ended {
		delete(m.batches, st.batch.ID)
	}
	m.mu.Unlock()
	if !ended {
		m.forgetDrained(st.batch.ID)
	}
	logx.Log.Debug().Str("batch", st.batch.ID).Msg("batch finished")
}

// forgetDrained drops a finished batch once none of its jobs is stored.
func (m *Manager) forgetDrained(batchID string) {
	m.mu.Lock()
	st := m.batches[batchID]
	if st == nil || !st.done {
		m.mu.Unlock()
		return
	}
	ids := st.batch.JobIDs
	m.mu.Unlock()

	for _, id := range ids {
		if _, err := m.store.Get(context.Background(), id); !errors.Is(err, types.ErrNotFound) {
			return
		}
	}
	m.mu.Lock()
	delete(m.batches, batchID)
	m.mu.Unlock()
	logx.Log.Debug().Str("batch", batchID).Msg("batch drained")
}

// publish fans ev out to the batch's subscribers without blocking. A full
// subscriber loses progress events, but never the done event.
func (m *Manager) publish(st *batchState, ev types.Event) {
	ev.BatchID = st.batch.ID
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Type {
	case types.EventProgress:
		last := ev
		st.last = &last
	case types.EventDone:
		st.done = true
	}
	for ch := range st.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if ev.Type != types.EventDone {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) touch(ctx context.Context, sessionID string) {
	if err := m.store.Touch(ctx, sessionID, m.now()); err != nil {
		logx.Log.Debug().Err(err).Str("session", sessionID).Msg("touching session")
	}
}

func (m *Manager) janitor() {
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.purgeIdle(m.ctx)
		}
	}
}

// purgeIdle ends every session idle for longer than the TTL.
func (m *Manager) purgeIdle(ctx context.Context) int {
	ids, err := m.store.IdleSessions(ctx, m.now().Add(-m.ttl))
	if err != nil {
		logx.Log.Warn().Err(err).Msg("listing idle sessions")
		return 0
	}
	for _, id := range ids {
		n, err := m.EndSession(ctx, id)
		if err != nil {
			logx.Log.Warn().Err(err).Str("session", id).Msg("ending idle session")
			continue
		}
		logx.Log.Debug().Str("session", id).Int("jobs", n).Msg("purged idle session")
	}
	return len(ids)
}

// stage copies an upload into its own subdirectory of dir, keeping the
// original name so the converter sees the right extension.
func stage(dir string, i int, name string, body io.Reader) (string, error) {
	sub := filepath.Join(dir, strconv.Itoa(i))
	if err := os.Mkdir(sub, 0o700); err != nil {
		return "", fmt.Errorf("%w: staging %s: %v", types.ErrFileSystem, name, err)
	}
	path := filepath.Join(sub, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: staging %s: %v", types.ErrFileSystem, name, err)
	}
	_, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil {
		return "", fmt.Errorf("%w: reading upload %s: %v", types.ErrFileSystem, name, copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("%w: staging %s: %v", types.ErrFileSystem, name, closeErr)
	}
	return path, nil
}
