// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pdiddy/markitdown-ui/internal/convert"
	"github.com/pdiddy/markitdown-ui/internal/jobs"
	"github.com/pdiddy/markitdown-ui/internal/logx"
	"github.com/pdiddy/markitdown-ui/internal/output"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to disk.
const multipartMemory = 32 << 20

// jobView is the API rendition of a job.
type jobView struct {
	*types.Job
	StatusLabel string         `json:"status_label"`
	Preview     *types.Preview `json:"preview,omitempty"`
}

func newJobView(job *types.Job, withPreview bool) jobView {
	v := jobView{Job: job, StatusLabel: job.Status.Label()}
	if withPreview && job.Status == types.StatusSucceeded {
		p := convert.NewPreview(job.Result)
		v.Preview = &p
	}
	return v
}

type batchResponse struct {
	Batch types.Batch `json:"batch"`
	Jobs  []jobView   `json:"jobs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "version": s.version}
	if s.conv != nil {
		body["backend"] = s.conv.Name()
	}
	if r, ok := s.conv.(interface{ HasMarkitdown() bool }); ok {
		body["markitdown"] = r.HasMarkitdown()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"supported_extensions": convert.SupportedExtensions(),
		"default_dir":          s.defaultDir,
		"max_upload_bytes":     s.cfg.MaxUploadBytes,
		"preview_length":       convert.PreviewLength,
	})
}

// parseUploads reads the multipart "files" field. The returned cleanup
// closes every part and removes spilled temp files.
func (s *Server) parseUploads(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, func(), error) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		if strings.Contains(err.Error(), "request body too large") {
			return nil, nil, &http.MaxBytesError{Limit: s.cfg.MaxUploadBytes}
		}
		return nil, nil, fmt.Errorf("%w: Please upload at least one file (%v)", types.ErrNoInput, err)
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("%w: Please upload at least one file", types.ErrNoInput)
	}
	return files, cleanup, nil
}

// noFilePreview is the preview text when the form carries no file.
const noFilePreview = "No file selected"

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	files, cleanup, err := s.parseUploads(w, r)
	if errors.Is(err, types.ErrNoInput) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":           "",
			"suggested_name": "",
			"preview":        types.Preview{Text: noFilePreview},
			"error":          types.ErrorCategory(err),
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	fh := files[0]
	name := filepath.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	if !convert.IsSupported(name) {
		p, err := convert.PreviewFile(r.Context(), s.conv, "", name)
		writeJSON(w, http.StatusOK, previewResponse(name, p, err))
		return
	}

	dir, err := os.MkdirTemp("", "markitdown-preview-*")
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", types.ErrFileSystem, err))
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := copyPart(fh, path); err != nil {
		writeError(w, err)
		return
	}
	p, err := convert.PreviewFile(r.Context(), s.conv, path, name)
	if err != nil {
		logx.Log.Warn().Err(err).Str("file", name).Msg("preview failed")
	}
	writeJSON(w, http.StatusOK, previewResponse(name, p, err))
}

func previewResponse(name string, p types.Preview, err error) map[string]any {
	body := map[string]any{
		"name":           name,
		"suggested_name": convert.SuggestName(name),
		"preview":        p,
	}
	if err != nil {
		body["error"] = types.ErrorCategory(err)
	}
	return body
}

func copyPart(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("%w: reading upload %s: %v", types.ErrFileSystem, fh.Filename, err)
	}
	defer src.Close()
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrFileSystem, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %v", types.ErrFileSystem, dst, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrFileSystem, err)
	}
	return nil
}

func (s *Server) handleSubmitFiles(w http.ResponseWriter, r *http.Request) {
	files, cleanup, err := s.parseUploads(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	uploads := make([]jobs.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, fmt.Errorf("%w: reading upload %s: %v", types.ErrFileSystem, fh.Filename, err))
			return
		}
		defer f.Close()
		uploads = append(uploads, jobs.Upload{Name: fh.Filename, Body: f})
	}

	batch, err := s.jobs.SubmitFiles(r.Context(), sessionID(r), uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeBatch(w, r, batch)
}

func (s *Server) handleSubmitURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: Please enter a valid URL", types.ErrInvalidURL))
		return
	}
	batch, err := s.jobs.SubmitURL(r.Context(), sessionID(r), body.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeBatch(w, r, batch)
}

func (s *Server) writeBatch(w http.ResponseWriter, r *http.Request, batch types.Batch) {
	resp := batchResponse{Batch: batch, Jobs: make([]jobView, 0, len(batch.JobIDs))}
	for _, id := range batch.JobIDs {
		job, err := s.jobs.Job(r.Context(), sessionID(r), id)
		if err != nil {
			continue
		}
		resp.Jobs = append(resp.Jobs, newJobView(job, false))
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.List(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]jobView, 0, len(list))
	for _, job := range list {
		views = append(views, newJobView(job, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Job(r.Context(), sessionID(r), chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job, true))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Job(r.Context(), sessionID(r), chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if job.Status != types.StatusSucceeded {
		writeError(w, fmt.Errorf("%w: %s is %s", types.ErrNotReady, job.DisplayName, job.Status.Label()))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": job.SuggestedName}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, job.Result)
}

type saveRequest struct {
	Directory string `json:"directory"`
	Filename  string `json:"filename"`
	Overwrite bool   `json:"overwrite"`
}

// handleSave writes a job to the requested directory. Failures carry the
// same ✗ line the UI shows in the job's results.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Job(r.Context(), sessionID(r), chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = fmt.Errorf("%w: No save location selected", types.ErrNoLocation)
		writeErrorMessage(w, err, output.FailureMessage(job.DisplayName, err))
		return
	}
	res, err := s.jobs.Save(r.Context(), sessionID(r), job.ID,
		types.OutputLocation{Directory: expandHome(req.Directory), Filename: req.Filename},
		output.SaveOptions{Overwrite: req.Overwrite})
	if err != nil {
		writeErrorMessage(w, err, output.FailureMessage(job.DisplayName, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    res.Path,
		"size":    res.Size,
		"message": res.Message(),
	})
}

func (s *Server) handleDiscardJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Discard(r.Context(), sessionID(r), chi.URLParam(r, "job_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobs.EndSession(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discarded": n})
}

// expandHome resolves a leading "~" against the user's home directory.
func expandHome(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}
