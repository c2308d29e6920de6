package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/seed"
)

type FamilyHandler struct {
	engine    *engine.Engine
	catalogue seed.Catalogue
	logger    *slog.Logger
}

func NewFamilyHandler(eng *engine.Engine, catalogue seed.Catalogue, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{engine: eng, catalogue: catalogue, logger: logger}
}

type createFamilyRequest struct {
	FamilyName string `json:"familyName"`
	Pin        string `json:"pin"`
}

// Create sets up the caller's family with the starter catalogue.
func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if !decode(w, r, &req) {
		return
	}

	familyID := auth.FamilyID(r.Context())
	rec, err := h.engine.CreateFamily(r.Context(), familyID, engine.FamilySetup{
		FamilyName: req.FamilyName,
		Pin:        req.Pin,
		Tasks:      h.catalogue.ModelTasks(),
		Rewards:    h.catalogue.ModelRewards(),
	})
	if err != nil {
		writeEngineError(w, h.logger, "create family", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec.Redacted())
}

func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Family(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeEngineError(w, h.logger, "load family", err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Redacted())
}
