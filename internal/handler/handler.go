// Package handler exposes the chore engine over a JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/engine"
)

// DeviceIDHeader identifies the kiosk or phone a request comes from. Each
// device keeps its own active profile.
const DeviceIDHeader = "X-Device-ID"

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

type appliedResponse struct {
	Applied bool `json:"applied"`
}

// writeEngineError maps engine errors onto status codes. Anything
// unrecognised is logged and reported as a 500 without details.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Errors,
		})
	case errors.Is(err, engine.ErrFamilyNotFound):
		writeError(w, http.StatusNotFound, "family is not set up")
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrFamilyExists):
		writeError(w, http.StatusConflict, "family already exists")
	case errors.Is(err, engine.ErrIncorrectPIN):
		writeError(w, http.StatusUnauthorized, "incorrect PIN")
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, "family changed, try again")
	default:
		logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
