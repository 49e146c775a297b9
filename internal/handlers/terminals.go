package handlers

import (
	"net/http"

	"github.com/charmbracelet/x/ansi"
	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/devdash/internal/config"
	"github.com/gluk-w/devdash/internal/termaudit"
	"github.com/gluk-w/devdash/internal/terminal"
)

// Terminals is set from main.go during init and owns every live handle.
var Terminals *terminal.Manager

// TermAudit is set from main.go. When nil, bridge events are not recorded
// and the events endpoint returns an empty result.
var TermAudit *termaudit.Auditor

// Profiles holds the named launch presets loaded at startup.
var Profiles config.Profiles

// maxPreviewLines caps the lines query parameter of the preview endpoint.
const maxPreviewLines = 5000

type createTerminalRequest struct {
	Cwd             string            `json:"cwd"`
	Name            string            `json:"name"`
	Command         string            `json:"command"`
	Args            []string          `json:"args"`
	Env             map[string]string `json:"env"`
	UseTmux         *bool             `json:"useTmux"`
	TmuxSessionName string            `json:"tmuxSessionName"`
	Profile         string            `json:"profile"`
	Cols            int               `json:"cols"`
	Rows            int               `json:"rows"`
}

// terminalResponse is returned by create and reconnect. tmuxSession is
// null for raw handles.
type terminalResponse struct {
	TerminalID  string  `json:"terminalId"`
	Name        string  `json:"name"`
	Cwd         string  `json:"cwd"`
	PID         int     `json:"pid"`
	TmuxSession *string `json:"tmuxSession"`
	Reconnected bool    `json:"reconnected,omitempty"`
}

func toTerminalResponse(info terminal.Info) terminalResponse {
	resp := terminalResponse{
		TerminalID:  info.ID,
		Name:        info.Name,
		Cwd:         info.Cwd,
		PID:         info.PID,
		Reconnected: info.Reconnected,
	}
	if info.SessionName != "" {
		name := info.SessionName
		resp.TmuxSession = &name
	}
	return resp
}

// applyProfile fills fields the request left unset from the named profile.
func applyProfile(req *createTerminalRequest, p config.Profile) {
	if req.Cwd == "" {
		req.Cwd = p.Cwd
	}
	if req.Command == "" {
		req.Command = p.Command
		if req.Args == nil {
			req.Args = p.Args
		}
	}
	if len(p.Env) > 0 {
		env := make(map[string]string, len(p.Env)+len(req.Env))
		for k, v := range p.Env {
			env[k] = v
		}
		for k, v := range req.Env {
			env[k] = v
		}
		req.Env = env
	}
	if req.UseTmux == nil {
		req.UseTmux = p.UseTmux
	}
}

// CreateTerminal spawns a terminal handle.
// POST /api/v1/terminals
func CreateTerminal(w http.ResponseWriter, r *http.Request) {
	var req createTerminalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Profile != "" {
		p, ok := Profiles.Get(req.Profile)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody("Unknown profile", terminal.KindValidation, req.Profile))
			return
		}
		applyProfile(&req, p)
	}

	useTmux := true
	if req.UseTmux != nil {
		useTmux = *req.UseTmux
	}
	info, err := Terminals.Create(r.Context(), terminal.CreateRequest{
		Cwd:             req.Cwd,
		Name:            req.Name,
		Command:         req.Command,
		Args:            req.Args,
		Env:             req.Env,
		UseTmux:         useTmux,
		TmuxSessionName: req.TmuxSessionName,
		Cols:            req.Cols,
		Rows:            req.Rows,
	})
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTerminalResponse(info))
}

// ListTerminals returns every registered handle.
// GET /api/v1/terminals
func ListTerminals(w http.ResponseWriter, r *http.Request) {
	infos, err := Terminals.List()
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"terminals": infos})
}

// GetTerminal returns one handle's metadata.
// GET /api/v1/terminals/{id}
func GetTerminal(w http.ResponseWriter, r *http.Request) {
	info, err := Terminals.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// RenameTerminal changes a handle's display name.
// PATCH /api/v1/terminals/{id}
func RenameTerminal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	info, err := Terminals.Rename(chi.URLParam(r, "id"), body.Name)
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// CloseTerminal terminates a handle, killing its tmux session if any.
// DELETE /api/v1/terminals/{id}
func CloseTerminal(w http.ResponseWriter, r *http.Request) {
	res, err := Terminals.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	var killed *string
	if res.KilledSession != "" {
		killed = &res.KilledSession
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       res.Closed,
		"killedSession": killed,
	})
}

// WriteTerminal sends input to a handle.
// POST /api/v1/terminals/{id}/write
func WriteTerminal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data string `json:"data"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Data) > terminal.MaxInputMessageSize {
		writeJSON(w, http.StatusBadRequest, errorBody("Input too large", terminal.KindValidation, ""))
		return
	}
	ok, err := Terminals.Write(chi.URLParam(r, "id"), []byte(body.Data))
	writeSuccess(w, ok, err)
}

// ResizeTerminal changes a handle's terminal size.
// POST /api/v1/terminals/{id}/resize
func ResizeTerminal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	ok, err := Terminals.Resize(chi.URLParam(r, "id"), body.Cols, body.Rows)
	writeSuccess(w, ok, err)
}

// writeSuccess reports the boolean result of write or resize. A false
// result means the handle is gone and is answered with 404.
func writeSuccess(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]bool{"success": ok})
}

// PreviewTerminal returns a handle's most recent output lines.
// GET /api/v1/terminals/{id}/preview?lines=N&strip=true&width=N
func PreviewTerminal(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "lines", terminal.DefaultPreviewLines)
	if n > maxPreviewLines {
		n = maxPreviewLines
	}
	lines, err := Terminals.RecentOutput(chi.URLParam(r, "id"), n)
	if err != nil {
		writeTerminalError(w, err)
		return
	}

	strip := r.URL.Query().Get("strip") == "true"
	width := queryInt(r, "width", 0)
	if strip || width > 0 {
		for i, line := range lines {
			if strip {
				line = ansi.Strip(line)
			}
			if width > 0 {
				line = ansi.Truncate(line, width, "")
			}
			lines[i] = line
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": lines})
}

// DetachTerminal stops a multiplexed handle's attach client and keeps its
// tmux session running.
// POST /api/v1/terminals/{id}/detach
func DetachTerminal(w http.ResponseWriter, r *http.Request) {
	info, err := Terminals.Detach(chi.URLParam(r, "id"))
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
