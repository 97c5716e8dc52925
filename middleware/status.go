package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/veyra/authcore"
)

// StatusFor maps the engine's error taxonomy to HTTP status codes.
func StatusFor(err error) int {
	switch authcore.KindOf(err) {
	case authcore.KindValidation:
		return http.StatusBadRequest
	case authcore.KindConflict:
		return http.StatusConflict
	case authcore.KindUnauthorized:
		return http.StatusUnauthorized
	case authcore.KindForbidden:
		return http.StatusForbidden
	case authcore.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders an engine error as a JSON problem body. Internal
// errors are masked; sentinel messages are already client-safe.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeStatus(w, status, message)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
