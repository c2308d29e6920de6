package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/session"
)

// KidHandler serves the actions a logged-in child can take. The acting
// child is the device's active profile.
type KidHandler struct {
	engine   *engine.Engine
	registry *session.Registry
	logger   *slog.Logger
}

func NewKidHandler(eng *engine.Engine, registry *session.Registry, logger *slog.Logger) *KidHandler {
	return &KidHandler{engine: eng, registry: registry, logger: logger}
}

// activeProfile returns the device's active child, writing an error when
// there is none.
func (h *KidHandler) activeProfile(w http.ResponseWriter, r *http.Request) (string, bool) {
	m := manager(w, r, h.registry)
	if m == nil {
		return "", false
	}
	id := m.Current()
	if id == "" {
		writeError(w, http.StatusConflict, "no active profile on this device")
		return "", false
	}
	return id, true
}

func (h *KidHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Dashboard(r.Context(), auth.FamilyID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, h.logger, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Tap is the task card action: it never cancels a pending request.
func (h *KidHandler) Tap(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Tap)
}

func (h *KidHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Toggle)
}

func (h *KidHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, familyID, profileID, taskID string) (engine.Transition, error)) {
	profileID, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	t, err := fn(r.Context(), auth.FamilyID(r.Context()), profileID, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, h.logger, "toggle task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *KidHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	applied, err := h.engine.CancelRequest(r.Context(), auth.FamilyID(r.Context()), profileID, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, h.logger, "cancel request", err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (h *KidHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	applied, err := h.engine.RedeemReward(r.Context(), auth.FamilyID(r.Context()), profileID, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, h.logger, "redeem reward", err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

type depositRequest struct {
	Amount int `json:"amount"`
}

func (h *KidHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	applied, err := h.engine.DepositPoints(r.Context(), auth.FamilyID(r.Context()), profileID, req.Amount)
	if err != nil {
		writeEngineError(w, h.logger, "deposit points", err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

func (h *KidHandler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	applied, err := h.engine.DismissNotification(r.Context(), auth.FamilyID(r.Context()), profileID, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, h.logger, "dismiss notification", err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}
