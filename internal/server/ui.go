// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var indexHTML string

// indexHandler serves the embedded web UI.
func indexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	}
}
