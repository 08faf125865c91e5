package api

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/reedfamily/zomboidbot/internal/backup"
	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"go.uber.org/zap"
)

type BackupHandler struct {
	backups *backup.Service
	server  Session
	log     *zap.Logger
}

func NewBackupHandler(backupSvc *backup.Service, server Session, log *zap.Logger) *BackupHandler {
	return &BackupHandler{backups: backupSvc, server: server, log: log}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	b, err := h.backups.Create(r.Context())
	if err != nil {
		h.log.Error("create backup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create backup: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, err := h.backups.FilePath(r.Context(), chi.URLParam(r, "backupId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(path))
	w.Header().Set("Content-Type", "application/gzip")
	http.ServeFile(w, r, path)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.backups.Delete(r.Context(), chi.URLParam(r, "backupId"))
	if errors.Is(err, backup.ErrNotFound) {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete backup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "backup deleted"})
}

// Restore rolls the world back. The server must be stopped first.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	status, err := h.server.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to query server status")
		return
	}
	if status == supervisor.StatusRunning {
		writeError(w, http.StatusConflict, "stop the server before restoring a backup")
		return
	}

	err = h.backups.Restore(r.Context(), chi.URLParam(r, "backupId"))
	if errors.Is(err, backup.ErrNotFound) {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	if err != nil {
		h.log.Error("restore backup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to restore backup: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "backup restored"})
}
