package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/devdash/internal/terminal"
)

// maxCaptureLines caps the lines query parameter of the capture endpoint.
const maxCaptureLines = 10000

// ListPersistedSessions enumerates tmux sessions on the dedicated server.
// GET /api/v1/terminals/persisted
func ListPersistedSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := Terminals.ListPersisted(r.Context())
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available": Terminals.TmuxAvailable(),
		"sessions":  sessions,
	})
}

type reconnectRequest struct {
	SessionName string            `json:"sessionName"`
	Cwd         string            `json:"cwd"`
	Env         map[string]string `json:"env"`
}

// ReconnectTerminal adopts an existing tmux session into a new handle.
// POST /api/v1/terminals/reconnect
func ReconnectTerminal(w http.ResponseWriter, r *http.Request) {
	var req reconnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	info, err := Terminals.Reconnect(r.Context(), req.SessionName, req.Cwd, req.Env)
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTerminalResponse(info))
}

// KillPersistedSession kills a tmux session whether or not a handle is
// attached to it.
// DELETE /api/v1/terminals/persisted/{name}
func KillPersistedSession(w http.ResponseWriter, r *http.Request) {
	if err := Terminals.KillSession(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CapturePersistedSession returns the visible pane of a tmux session plus
// up to lines of its scrollback.
// GET /api/v1/terminals/persisted/{name}/capture?lines=N
func CapturePersistedSession(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "lines", terminal.DefaultPreviewLines)
	if n > maxCaptureLines {
		n = maxCaptureLines
	}
	name := chi.URLParam(r, "name")
	content, err := Terminals.CapturePane(r.Context(), name, n)
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "content": content})
}
