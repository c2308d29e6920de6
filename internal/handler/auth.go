package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/engine"
)

type AuthHandler struct {
	local  *auth.Local
	engine *engine.Engine
	logger *slog.Logger
}

// NewAuthHandler creates the account handler. local is nil when accounts are
// managed by an external identity provider.
func NewAuthHandler(local *auth.Local, eng *engine.Engine, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{local: local, engine: eng, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if h.local == nil {
		writeError(w, http.StatusNotImplemented, "sign-up is handled by the identity provider")
		return
	}
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := h.local.SignUp(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("sign up", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("account created", "account_id", sess.Account.ID)
	writeJSON(w, http.StatusCreated, sess)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if h.local == nil {
		writeError(w, http.StatusNotImplemented, "sign-in is handled by the identity provider")
		return
	}
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := h.local.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		h.logger.Error("sign in", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Me reports the caller and whether their family has been set up yet.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	_, err := h.engine.Family(r.Context(), ac.AccountID)
	if err != nil && !errors.Is(err, engine.ErrFamilyNotFound) {
		writeEngineError(w, h.logger, "load family", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": ac.AccountID,
		"email":     ac.Email,
		"hasFamily": err == nil,
	})
}
