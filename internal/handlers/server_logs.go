package handlers

import (
	"net/http"

	"github.com/gluk-w/devdash/internal/logging"
)

// maxLogLines caps the lines query parameter of GetServerLogs.
const maxLogLines = 10000

// GetServerLogs returns the tail of the devdash log file.
// GET /api/v1/server/logs?lines=N
func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := queryInt(r, "lines", 200)
	if lines > maxLogLines {
		lines = maxLogLines
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}

// ClearServerLogs truncates the devdash log file.
// DELETE /api/v1/server/logs
func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
