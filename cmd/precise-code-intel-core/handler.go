package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/inconshreveable/log15"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/api"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cursor"
)

// handler is the HTTP transport over api.CodeIntelAPI, mirroring the
// teacher's api-server routes (definitions/references/hover/exists) plus
// the diagnostics endpoint this core adds.
type handler struct {
	api api.CodeIntelAPI
}

func newHandler(a api.CodeIntelAPI) http.Handler {
	h := &handler{api: a}

	router := mux.NewRouter()
	router.Path("/exists").Methods("GET").HandlerFunc(h.handleExists)
	router.Path("/definitions").Methods("GET").HandlerFunc(h.handleDefinitions)
	router.Path("/references").Methods("GET").HandlerFunc(h.handleReferences)
	router.Path("/hover").Methods("GET").HandlerFunc(h.handleHover)
	router.Path("/diagnostics").Methods("GET").HandlerFunc(h.handleDiagnostics)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router
}

func queryInt(q map[string][]string, name string) int {
	if vs, ok := q[name]; ok && len(vs) > 0 {
		i, _ := strconv.Atoi(vs[0])
		return i
	}
	return 0
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to an HTTP status: ErrNoDumpFound is a
// 404, a bad cursor is a 400, a cancelled request is reported as such, and
// everything else is an internal error, logged with its full detail since
// the client only sees a generic message.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, api.ErrNoDumpFound):
		http.Error(w, "no dump found", http.StatusNotFound)
	case errors.Is(err, api.ErrCursorInvalid):
		http.Error(w, "invalid cursor", http.StatusBadRequest)
	case errors.Is(err, context.Canceled):
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	default:
		log15.Error("code intel request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *handler) handleExists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dumps, err := h.api.FindClosestDumps(r.Context(), queryInt(q, "repositoryId"), q.Get("commit"), q.Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"dumps": dumps})
}

func (h *handler) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locations, err := h.api.Definitions(
		r.Context(),
		queryInt(q, "repositoryId"), q.Get("commit"), q.Get("path"),
		queryInt(q, "line"), queryInt(q, "character"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"locations": locations})
}

func (h *handler) handleReferences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var cur *cursor.Cursor
	if raw := q.Get("cursor"); raw != "" {
		decoded, err := cursor.Decode(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		cur = &decoded
	}

	locations, next, err := h.api.References(
		r.Context(),
		queryInt(q, "repositoryId"), q.Get("commit"), q.Get("path"),
		queryInt(q, "line"), queryInt(q, "character"), queryInt(q, "limit"),
		cur,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]interface{}{"locations": locations}
	if next != nil {
		encoded, err := cursor.Encode(*next)
		if err != nil {
			writeError(w, err)
			return
		}
		response["cursor"] = encoded
	}
	writeJSON(w, response)
}

func (h *handler) handleHover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text, rng, exists, err := h.api.Hover(
		r.Context(),
		queryInt(q, "repositoryId"), q.Get("commit"), q.Get("path"),
		queryInt(q, "line"), queryInt(q, "character"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		writeJSON(w, nil)
		return
	}
	writeJSON(w, map[string]interface{}{"text": text, "range": rng})
}

func (h *handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q, "limit")
	if limit <= 0 {
		limit = 100
	}

	diagnostics, total, err := h.api.Diagnostics(r.Context(), queryInt(q, "dumpId"), q.Get("prefix"), limit, queryInt(q, "offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"diagnostics": diagnostics, "totalCount": total})
}
