package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// Error taxonomy. Callers wrap these with fmt.Errorf("...: %w") and match
// them with errors.Is; the HTTP layer maps them to codes and statuses.
var (
	ErrNotFound       = errors.New("not found")
	ErrNotADirectory  = errors.New("not a directory")
	ErrOutsideRoot    = errors.New("path is outside the root directory")
	ErrNotMarkdown    = errors.New("not a markdown file")
	ErrUnknownSession = errors.New("unknown session")
	ErrWatcher        = errors.New("watcher error")
	ErrPersistence    = errors.New("persistence error")
	ErrExternalTool   = errors.New("external tool error")
)

var errorTaxonomy = []struct {
	err    error
	code   string
	status int
}{
	{ErrNotFound, "NotFound", http.StatusNotFound},
	{ErrNotADirectory, "NotADirectory", http.StatusBadRequest},
	{ErrOutsideRoot, "OutsideRoot", http.StatusForbidden},
	{ErrNotMarkdown, "NotMarkdown", http.StatusForbidden},
	{ErrUnknownSession, "UnknownSession", http.StatusForbidden},
	{ErrWatcher, "WatcherError", http.StatusInternalServerError},
	{ErrPersistence, "PersistenceError", http.StatusInternalServerError},
	{ErrExternalTool, "ExternalToolError", http.StatusBadGateway},
}

// errorCode maps err to its taxonomy name and HTTP status.
// Errors outside the taxonomy are reported as "Internal" / 500.
func errorCode(err error) (string, int) {
	for _, e := range errorTaxonomy {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return "Internal", http.StatusInternalServerError
}

// result is the envelope every JSON endpoint responds with.
type result struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, result{Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	writeJSON(w, status, result{Error: err.Error(), Code: code})
}
