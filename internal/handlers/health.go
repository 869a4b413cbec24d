package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"booking-intake/internal/backup"
)

type HealthChecker interface {
	HealthCheck() error
}

type BackupStatus interface {
	State() backup.State
	LastSnapshot() time.Time
	BackupPath() string
}

type HealthHandler struct {
	store   HealthChecker
	backups BackupStatus
}

func NewHealthHandler(store HealthChecker, backups BackupStatus) *HealthHandler {
	return &HealthHandler{store: store, backups: backups}
}

func (h *HealthHandler) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	storeStatus := "ok"

	if err := h.store.HealthCheck(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		storeStatus = err.Error()
	}

	backupInfo := gin.H{
		"state": h.backups.State().String(),
		"path":  h.backups.BackupPath(),
	}
	if last := h.backups.LastSnapshot(); !last.IsZero() {
		backupInfo["last_snapshot"] = last.UTC()
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "booking-intake",
		"store":     storeStatus,
		"backup":    backupInfo,
	})
}
