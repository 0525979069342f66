package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// healthHandler reports whether the launch snapshot is fresh.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	now := s.clock()
	updated := s.snap.UpdatedAt()
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": now.UTC().Format(time.RFC3339),
		"launches":  s.snap.Len(),
		"version":   s.snap.Version(),
	}
	switch {
	case updated.IsZero():
		healthData["status"] = "degraded"
		healthData["error"] = "launch feed not polled yet"
	case now.Sub(updated) > s.staleAfter:
		healthData["status"] = "degraded"
		healthData["error"] = "launch snapshot is stale"
		healthData["updated_at"] = updated.UTC().Format(time.RFC3339)
	default:
		healthData["updated_at"] = updated.UTC().Format(time.RFC3339)
	}
	if s.engine != nil {
		healthData["sessions"] = s.engine.Len()
		healthData["registrations"] = s.engine.Registry().Len()
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, healthData)
}

// launchesHandler lists the snapshot, optionally filtered by ?provider=.
func (s *Server) launchesHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	launches := s.snap.Launches()
	if provider := strings.TrimSpace(r.URL.Query().Get("provider")); provider != "" {
		filtered := launches[:0]
		for _, l := range launches {
			if models.ProviderMatches(provider, l.Provider) {
				filtered = append(filtered, l)
			}
		}
		launches = filtered
	}
	if launches == nil {
		launches = []models.LaunchRecord{}
	}
	slog.Debug("Server.launchesHandler", "count", len(launches))
	writeResult(w, launches)
}

// launchHandler returns one launch by ordinal or source id.
func (s *Server) launchHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ref := strings.TrimPrefix(r.URL.Path, "/launches/")
	if ref == "" {
		writeFailure(w, http.StatusBadRequest, "Launch reference required")
		return
	}
	if n, err := strconv.Atoi(ref); err == nil {
		launch, err := s.snap.At(n)
		if err != nil {
			writeFailure(w, http.StatusNotFound, err.Error())
			return
		}
		writeResult(w, launch)
		return
	}
	launch, ok := s.snap.Find(ref)
	if !ok {
		writeFailure(w, http.StatusNotFound, models.ErrLaunchNotFound.Error())
		return
	}
	writeResult(w, launch)
}
