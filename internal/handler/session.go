package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/session"
)

// SessionHandler manages which child is active on a device.
type SessionHandler struct {
	engine   *engine.Engine
	registry *session.Registry
	logger   *slog.Logger
}

func NewSessionHandler(eng *engine.Engine, registry *session.Registry, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{engine: eng, registry: registry, logger: logger}
}

// manager returns the session of the requesting device, or writes a 400
// when the device did not identify itself.
func manager(w http.ResponseWriter, r *http.Request, registry *session.Registry) *session.Manager {
	deviceID := r.Header.Get(DeviceIDHeader)
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, DeviceIDHeader+" header is required")
		return nil
	}
	return registry.Get(auth.FamilyID(r.Context()), deviceID)
}

type sessionResponse struct {
	ProfileID string                `json:"profileId"`
	Summary   *engine.PeriodSummary `json:"summary"`
}

type switchProfileRequest struct {
	ProfileID string `json:"profileId"`
	Pin       string `json:"pin"`
}

// SwitchProfile logs a child in on this device. Profiles with a PIN must
// supply it.
func (h *SessionHandler) SwitchProfile(w http.ResponseWriter, r *http.Request) {
	m := manager(w, r, h.registry)
	if m == nil {
		return
	}
	var req switchProfileRequest
	if !decode(w, r, &req) {
		return
	}

	familyID := auth.FamilyID(r.Context())
	// An unknown profile falls through to SwitchProfile, which leaves the
	// device as it was.
	err := h.engine.VerifyProfilePIN(r.Context(), familyID, req.ProfileID, req.Pin)
	if err != nil && !errors.Is(err, engine.ErrNotFound) {
		writeEngineError(w, h.logger, "verify profile pin", err)
		return
	}
	summary, err := m.SwitchProfile(r.Context(), req.ProfileID)
	if err != nil {
		writeEngineError(w, h.logger, "switch profile", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ProfileID: m.Current(), Summary: summary})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m := manager(w, r, h.registry)
	if m == nil {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ProfileID: m.Current(), Summary: m.Summary()})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	m := manager(w, r, h.registry)
	if m == nil {
		return
	}
	m.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) DismissSummary(w http.ResponseWriter, r *http.Request) {
	m := manager(w, r, h.registry)
	if m == nil {
		return
	}
	m.DismissSummary()
	w.WriteHeader(http.StatusNoContent)
}
