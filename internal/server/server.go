// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server serves the web UI and its JSON API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdiddy/markitdown-ui/internal/convert"
	"github.com/pdiddy/markitdown-ui/internal/jobs"
	"github.com/pdiddy/markitdown-ui/internal/logx"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// Options wires a Server to its collaborators.
type Options struct {
	Config types.ServerConfig
	Jobs   *jobs.Manager
	// Converter renders synchronous previews.
	Converter convert.Converter
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// DefaultDir pre-fills the save form.
	DefaultDir string
	Version    string
}

// Server holds the handler state.
type Server struct {
	cfg        types.ServerConfig
	jobs       *jobs.Manager
	conv       convert.Converter
	defaultDir string
	version    string
}

// New constructs the HTTP handler.
func New(opts Options) http.Handler {
	s := &Server{
		cfg:        opts.Config,
		jobs:       opts.Jobs,
		conv:       opts.Converter,
		defaultDir: opts.DefaultDir,
		version:    opts.Version,
	}

	r := chi.NewRouter()
	if len(opts.Config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.Config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}
	for _, m := range middlewareChain() {
		r.Use(m)
	}

	r.Get("/", indexHandler())
	r.Get("/healthz", s.handleHealth)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/config", s.handleConfig)
		ar.Post("/preview", s.handlePreview)
		ar.Post("/files", s.handleSubmitFiles)
		ar.Post("/url", s.handleSubmitURL)
		ar.Get("/batches/{batch_id}/events", s.handleEvents)
		ar.Get("/jobs", s.handleListJobs)
		ar.Route("/jobs/{job_id}", func(jr chi.Router) {
			jr.Get("/", s.handleGetJob)
			jr.Delete("/", s.handleDiscardJob)
			jr.Get("/markdown", s.handleDownload)
			jr.Post("/save", s.handleSave)
		})
		ar.Delete("/session", s.handleEndSession)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, err, err.Error())
}

// writeErrorMessage is writeError with a message for display in place of
// the error text.
func writeErrorMessage(w http.ResponseWriter, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "too_large", Message: "Upload exceeds the size limit"})
		return
	}
	category := types.ErrorCategory(err)
	writeJSON(w, statusFor(category), errorBody{Error: category, Message: message})
}

func statusFor(category string) int {
	switch category {
	case types.CategoryInvalidFileType, types.CategoryInvalidInput:
		return http.StatusBadRequest
	case types.CategoryNotFound:
		return http.StatusNotFound
	case types.CategoryDestinationExists, types.CategoryNotReady:
		return http.StatusConflict
	default:
		logx.Log.Debug().Str("category", category).Msg("server error")
		return http.StatusInternalServerError
	}
}
