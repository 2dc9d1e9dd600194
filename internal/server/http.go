package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/threads/internal/metrics"
	"github.com/alfredjeanlab/threads/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
func (s *ThreadsServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/forests/{type}/{id}/comments/roots", s.handleRootComments)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/comments/nested", s.handleNestedComments)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/comments", s.handleListComments)
	mux.HandleFunc("POST /v1/forests/{type}/{id}/comments", s.handleAddComment)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/comments/{cid}", s.handleGetComment)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/comments/{cid}/subtree", s.handleSubtree)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/comments/{cid}/ancestors", s.handleAncestors)
	mux.HandleFunc("DELETE /v1/forests/{type}/{id}/comments/{cid}", s.handleDeleteComment)
	mux.HandleFunc("DELETE /v1/forests/{type}/{id}", s.handleDeleteForest)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/exists", s.handleExists)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/forests/{type}/{id}/users/{uid}/comments", s.handleForestUserComments)
	mux.HandleFunc("GET /v1/users/{uid}/comments", s.handleUserComments)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *ThreadsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps err to a status code. Validation failures carry
// their field list; server-side failures are logged.
func (s *ThreadsServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, code, map[string]any{"error": ve.Error(), "fields": ve.Errors})
		return
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, code, err.Error())
}
