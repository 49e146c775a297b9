package handlers

import (
	"net/http"

	"github.com/gluk-w/devdash/internal/database"
)

// HealthCheck reports database connectivity and terminal backend
// capabilities. It is served without authentication or the backend gate.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	ptyStatus := "unavailable"
	tmuxStatus := "unavailable"
	terminals := 0
	if Terminals != nil {
		if Terminals.Available() == nil {
			ptyStatus = "available"
		}
		if Terminals.TmuxAvailable() {
			tmuxStatus = "available"
		}
		terminals = Terminals.Count()
	}

	status := "healthy"
	switch {
	case dbStatus != "connected":
		status = "unhealthy"
	case ptyStatus != "available":
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"database":  dbStatus,
		"pty":       ptyStatus,
		"tmux":      tmuxStatus,
		"terminals": terminals,
	})
}
