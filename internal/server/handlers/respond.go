// internal/server/handlers/respond.go

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}

	if err != nil && code >= 500 {
		logrus.WithError(err).WithField("status", code).Error(message)
	}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}

// requireUser pulls the caller identity from request headers. Returns
// empty string after writing a 401 when the header is missing.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondWithError(w, http.StatusUnauthorized, "Missing user identity", nil)
	}
	return userID
}

func userName(r *http.Request) string {
	if name := r.Header.Get("X-User-Name"); name != "" {
		return name
	}
	return "anonymous"
}
