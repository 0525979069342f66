package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// internalErrorBody is served when a payload cannot be encoded.
var internalErrorBody = mustMarshal(models.Error("Internal server error"))

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("api: cannot encode static response: " + err.Error())
	}
	return b
}

// writeResult wraps payload in the success envelope.
func writeResult(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, models.Success(payload))
}

// writeFailure wraps message in the error envelope.
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.Error(message))
}

// writeJSON encodes body before touching headers, so an encoding failure
// still produces a well-formed 500. Snapshot data changes every poll and is
// never cached.
func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("Server.writeJSON: encode failed", "status", status, "error", err)
		data, status = internalErrorBody, http.StatusInternalServerError
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("Server.writeJSON: write failed", "status", status, "error", err)
	}
}
