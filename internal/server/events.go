// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pdiddy/markitdown-ui/internal/logx"
	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// keepAlive is how often an idle event stream sends a comment line.
var keepAlive = 15 * time.Second

// handleEvents streams a batch's progress as server-sent events and ends
// the stream after the done event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ch, unsubscribe, err := s.jobs.Subscribe(sessionID(r), chi.URLParam(r, "batch_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
			if ev.Type == types.EventDone {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev types.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logx.Log.Warn().Err(err).Str("event", string(ev.Type)).Msg("serialize batch event")
		return
	}
	_, _ = w.Write([]byte("event: " + string(ev.Type) + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}
