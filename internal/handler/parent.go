package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/session"
)

const defaultLogLimit = 100

// ParentHandler serves the PIN-gated parent panel.
type ParentHandler struct {
	engine   *engine.Engine
	tokens   *auth.JWTManager
	registry *session.Registry
	logger   *slog.Logger
}

func NewParentHandler(eng *engine.Engine, tokens *auth.JWTManager, registry *session.Registry, logger *slog.Logger) *ParentHandler {
	return &ParentHandler{engine: eng, tokens: tokens, registry: registry, logger: logger}
}

type pinRequest struct {
	Pin string `json:"pin"`
}

type unlockResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Unlock exchanges the family PIN for a short-lived parent token.
func (h *ParentHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if !decode(w, r, &req) {
		return
	}
	familyID := auth.FamilyID(r.Context())
	if err := h.engine.VerifyParentPIN(r.Context(), familyID, req.Pin); err != nil {
		writeEngineError(w, h.logger, "verify parent pin", err)
		return
	}

	token, err := h.tokens.GenerateParentToken(familyID)
	if err != nil {
		h.logger.Error("issue parent token", "family_id", familyID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, unlockResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.tokens.ParentTTL()).UTC(),
	})
}

func (h *ParentHandler) UpdatePIN(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.UpdateParentPIN(r.Context(), auth.FamilyID(r.Context()), req.Pin); err != nil {
		writeEngineError(w, h.logger, "update parent pin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ParentHandler) Approvals(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.PendingApprovals(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeEngineError(w, h.logger, "list approvals", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ParentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req model.PendingRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Approve(r.Context(), auth.FamilyID(r.Context()), req)
	if err != nil {
		writeEngineError(w, h.logger, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ParentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req model.PendingRequest
	if !decode(w, r, &req) {
		return
	}
	applied, err := h.engine.Reject(r.Context(), auth.FamilyID(r.Context()), req)
	if err != nil {
		writeEngineError(w, h.logger, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Applied: applied})
}

// Logs returns the activity log, newest first. ?limit=0 returns everything.
func (h *ParentHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	logs, err := h.engine.Logs(r.Context(), auth.FamilyID(r.Context()), limit)
	if err != nil {
		writeEngineError(w, h.logger, "list logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *ParentHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in engine.TaskInput
	if !decode(w, r, &in) {
		return
	}
	task, err := h.engine.AddTask(r.Context(), auth.FamilyID(r.Context()), in)
	if err != nil {
		writeEngineError(w, h.logger, "add task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *ParentHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var in engine.TaskInput
	if !decode(w, r, &in) {
		return
	}
	task, err := h.engine.UpdateTask(r.Context(), auth.FamilyID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		writeEngineError(w, h.logger, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *ParentHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteTask(r.Context(), auth.FamilyID(r.Context()), r.PathValue("id")); err != nil {
		writeEngineError(w, h.logger, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ParentHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var in engine.RewardInput
	if !decode(w, r, &in) {
		return
	}
	reward, err := h.engine.AddReward(r.Context(), auth.FamilyID(r.Context()), in)
	if err != nil {
		writeEngineError(w, h.logger, "add reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (h *ParentHandler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	var in engine.RewardInput
	if !decode(w, r, &in) {
		return
	}
	reward, err := h.engine.UpdateReward(r.Context(), auth.FamilyID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		writeEngineError(w, h.logger, "update reward", err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (h *ParentHandler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteReward(r.Context(), auth.FamilyID(r.Context()), r.PathValue("id")); err != nil {
		writeEngineError(w, h.logger, "delete reward", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ParentHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var in engine.ProfileInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.engine.AddProfile(r.Context(), auth.FamilyID(r.Context()), in)
	if err != nil {
		writeEngineError(w, h.logger, "add profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, redactProfile(p))
}

func (h *ParentHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in engine.ProfileInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.engine.UpdateProfile(r.Context(), auth.FamilyID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		writeEngineError(w, h.logger, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, redactProfile(p))
}

// DeleteProfile removes a child and logs them out of every device.
func (h *ParentHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	profileID := r.PathValue("id")
	removed, err := h.engine.RemoveProfile(r.Context(), familyID, profileID)
	if err != nil {
		writeEngineError(w, h.logger, "remove profile", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	h.registry.Forget(familyID, profileID)
	w.WriteHeader(http.StatusNoContent)
}

func redactProfile(p model.Profile) model.Profile {
	p.HasPIN = p.Pin != ""
	p.Pin = ""
	return p
}
