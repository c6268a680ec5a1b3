package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-groups/internal/detector"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// StatusReporter reports the loading state of the face detector.
type StatusReporter interface {
	Status() string
}

// HealthCheck returns the health check handler. The service is healthy once
// the face detector has loaded.
func HealthCheck(detectorStatus StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch detectorStatus.Status() {
		case detector.StatusReady:
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case detector.StatusFailed:
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "failed"})
		default:
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		}
	}
}
