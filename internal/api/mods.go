package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/reedfamily/zomboidbot/internal/mods"
	"github.com/reedfamily/zomboidbot/internal/workshop"
	"go.uber.org/zap"
)

// ModService is satisfied by *mods.Manager.
type ModService interface {
	Installed(ctx context.Context) ([]workshop.Mod, error)
	Lookup(identifier string) (workshop.Mod, error)
	Dependents(identifier string) ([]string, error)
	Dependencies(identifier string) ([]string, error)
	Check(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) (map[string]workshop.Mod, error)
	Install(ctx context.Context, m map[string]workshop.Mod) ([]workshop.Mod, error)
	Remove(ctx context.Context, identifier string, force bool) error
}

type ModsHandler struct {
	mods ModService
	log  *zap.Logger
}

func NewModsHandler(m ModService, log *zap.Logger) *ModsHandler {
	return &ModsHandler{mods: m, log: log}
}

func (h *ModsHandler) List(w http.ResponseWriter, r *http.Request) {
	installed, err := h.mods.Installed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list mods")
		return
	}
	if installed == nil {
		installed = []workshop.Mod{}
	}
	writeJSON(w, http.StatusOK, installed)
}

// Get returns one installed mod with both directions of its dependencies.
func (h *ModsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mod, err := h.mods.Lookup(id)
	if err != nil {
		h.modError(w, err)
		return
	}
	dependents, _ := h.mods.Dependents(mod.WorkshopID)
	dependencies, _ := h.mods.Dependencies(mod.WorkshopID)
	writeJSON(w, http.StatusOK, map[string]any{
		"mod":          mod,
		"dependents":   nonNil(dependents),
		"dependencies": nonNil(dependencies),
	})
}

// Install adds a workshop item and everything it requires without a vote.
func (h *ModsHandler) Install(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkshopID string `json:"workshop_id"`
	}
	if err := decodeJSON(r, &req); err != nil || !workshop.IsWorkshopID(req.WorkshopID) {
		writeError(w, http.StatusBadRequest, "numeric workshop_id required")
		return
	}
	if err := h.mods.Check(r.Context(), req.WorkshopID); err != nil {
		h.modError(w, err)
		return
	}
	resolved, err := h.mods.Resolve(r.Context(), req.WorkshopID)
	if err != nil {
		h.modError(w, err)
		return
	}
	added, err := h.mods.Install(r.Context(), resolved)
	if err != nil {
		h.modError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *ModsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	err := h.mods.Remove(r.Context(), id, force)
	var de *mods.DependentsError
	if errors.As(err, &de) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      de.Error(),
			"dependents": de.Dependents,
		})
		return
	}
	if err != nil {
		h.modError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "mod removed"})
}

func (h *ModsHandler) modError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mods.ErrUnknownMod):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mods.ErrAmbiguousMod), errors.Is(err, mods.ErrInvalidMod), errors.Is(err, mods.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mods.ErrAlreadyInstalled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workshop.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		h.log.Error("mods", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "mod operation failed")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
