package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/timenest/internal/backup"
	"github.com/dukerupert/timenest/internal/model"
)

const backupListLimit = 50

// Backups is the part of the backup manager the admin API drives.
type Backups interface {
	Enabled() bool
	List(limit int) ([]model.Backup, error)
	Run(ctx context.Context) (*model.Backup, error)
}

type BackupHandler struct {
	backups Backups
	logger  *slog.Logger
}

func NewBackupHandler(b Backups, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{backups: b, logger: logger}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.backups.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	list, err := h.backups.List(backupListLimit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Run takes a backup immediately and returns its record.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	record, err := h.backups.Run(r.Context())
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
	case errors.Is(err, backup.ErrRunning):
		writeError(w, http.StatusConflict, "a backup is already running")
	case err != nil && record != nil:
		writeJSON(w, http.StatusBadGateway, record)
	case err != nil:
		h.logger.Error("run backup", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
	default:
		writeJSON(w, http.StatusCreated, record)
	}
}
