package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gluk-w/devdash/internal/database"
	"github.com/gluk-w/devdash/internal/terminal"
	"github.com/gluk-w/devdash/internal/tmux"
)

// setupTmuxTerminals installs a manager backed by an isolated tmux server
// and the test database as session store.
func setupTmuxTerminals(t *testing.T) *terminal.Manager {
	t.Helper()
	setupTestDB(t)
	server := tmux.NewTestServer(t)
	m := terminal.NewManager(terminal.Config{
		TmuxSocket:    server.SocketPath(),
		TmuxConfig:    "/dev/null",
		DefaultShell:  "/bin/sh",
		KillGrace:     500 * time.Millisecond,
		Store:         database.NewSessionStore(database.DB),
		Events:        TermAudit,
		TmuxAvailable: func() bool { return true },
	})
	if err := m.Available(); err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	installManager(t, m)
	return m
}

func persistedByName(t *testing.T, baseURL string) map[string]map[string]interface{} {
	t.Helper()
	status, resp := doJSON(t, http.MethodGet, baseURL+"/api/v1/terminals/persisted", nil)
	if status != http.StatusOK {
		t.Fatalf("list persisted: status = %d, body = %v", status, resp)
	}
	if resp["available"] != true {
		t.Fatalf("available = %v, want true", resp["available"])
	}
	out := map[string]map[string]interface{}{}
	list, _ := resp["sessions"].([]interface{})
	for _, s := range list {
		entry, _ := s.(map[string]interface{})
		name, _ := entry["name"].(string)
		out[name] = entry
	}
	return out
}

func TestPersistedSessions_DetachReconnectKill(t *testing.T) {
	setupTmuxTerminals(t)
	ts := newTestServer(t)
	cwd := t.TempDir()

	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals", map[string]interface{}{
		"cwd":             cwd,
		"name":            "project shell",
		"tmuxSessionName": "api-proj",
	})
	if status != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %v", status, resp)
	}
	if resp["tmuxSession"] != "api-proj" {
		t.Fatalf("tmuxSession = %v, want api-proj", resp["tmuxSession"])
	}
	id := resp["terminalId"].(string)

	doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals/"+id+"/write", map[string]string{"data": "echo kept-$((7*6))\n"})
	waitForPreview(t, ts, id, "?strip=true", "kept-42")

	status, info := doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals/"+id+"/detach", nil)
	if status != http.StatusOK || info["status"] != "detached" {
		t.Fatalf("detach: status = %d, body = %v", status, info)
	}
	if status, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/terminals/"+id, nil); status != http.StatusNotFound {
		t.Errorf("detached handle still registered: status %d", status)
	}

	sessions := persistedByName(t, ts.URL)
	entry, ok := sessions["api-proj"]
	if !ok {
		t.Fatalf("api-proj missing from persisted sessions: %v", sessions)
	}
	if entry["cwd"] != cwd || entry["label"] != "project shell" {
		t.Errorf("persisted metadata = %v", entry)
	}

	status, capture := doJSON(t, http.MethodGet, ts.URL+"/api/v1/terminals/persisted/api-proj/capture?lines=50", nil)
	if status != http.StatusOK || !strings.Contains(capture["content"].(string), "kept-42") {
		t.Errorf("capture: status = %d, body = %v", status, capture)
	}

	status, resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals/reconnect", map[string]string{"sessionName": "api-proj"})
	if status != http.StatusCreated {
		t.Fatalf("reconnect: status = %d, body = %v", status, resp)
	}
	if resp["reconnected"] != true || resp["tmuxSession"] != "api-proj" || resp["cwd"] != cwd {
		t.Errorf("reconnect response = %v", resp)
	}
	newID := resp["terminalId"].(string)
	if newID == id {
		t.Error("reconnect reused the detached handle id")
	}

	status, resp = doJSON(t, http.MethodDelete, ts.URL+"/api/v1/terminals/persisted/api-proj", nil)
	if status != http.StatusOK || resp["success"] != true {
		t.Fatalf("kill: status = %d, body = %v", status, resp)
	}
	if _, ok := persistedByName(t, ts.URL)["api-proj"]; ok {
		t.Error("api-proj still listed after kill")
	}
	if status, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/terminals/"+newID, nil); status != http.StatusNotFound {
		t.Errorf("handle attached to killed session still registered: status %d", status)
	}

	status, resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals/reconnect", map[string]string{"sessionName": "api-proj"})
	if status != http.StatusNotFound || resp["kind"] != "not_found" {
		t.Errorf("reconnect to killed session: status = %d, body = %v", status, resp)
	}
	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/v1/terminals/persisted/api-proj", nil)
	if status != http.StatusNotFound {
		t.Errorf("second kill: status = %d, want 404", status)
	}
}

func TestCloseTerminal_KillsTmuxSession(t *testing.T) {
	m := setupTmuxTerminals(t)
	ts := newTestServer(t)

	id := createTerminal(t, ts, map[string]interface{}{
		"name":            "closing",
		"useTmux":         true,
		"tmuxSessionName": "api-close",
	})

	status, resp := doJSON(t, http.MethodDelete, ts.URL+"/api/v1/terminals/"+id, nil)
	if status != http.StatusOK || resp["killedSession"] != "api-close" {
		t.Fatalf("close: status = %d, body = %v", status, resp)
	}
	if m.Tmux().HasSession(context.Background(), "api-close") {
		t.Error("tmux session survived close")
	}
}

func TestCreateTerminal_DuplicateSessionName(t *testing.T) {
	setupTmuxTerminals(t)
	ts := newTestServer(t)

	createTerminal(t, ts, map[string]interface{}{"name": "one", "useTmux": true, "tmuxSessionName": "api-dup"})
	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals", map[string]interface{}{
		"cwd":             t.TempDir(),
		"name":            "two",
		"tmuxSessionName": "api-dup",
	})
	if status != http.StatusBadRequest || resp["kind"] != "validation" {
		t.Fatalf("duplicate: status = %d, body = %v", status, resp)
	}
}

func TestTerminalWS_MultiplexedFanOut(t *testing.T) {
	setupTmuxTerminals(t)
	ts := newTestServer(t)
	id := createTerminal(t, ts, map[string]interface{}{"name": "shared", "useTmux": true, "tmuxSessionName": "api-fan"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a := dialTerminal(t, ctx, wsURL(ts, id))
	b := dialTerminal(t, ctx, wsURL(ts, id))

	doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals/"+id+"/write", map[string]string{"data": "echo fan-$((3*3))\n"})
	readOutputUntil(t, ctx, a, "fan-9")
	readOutputUntil(t, ctx, b, "fan-9")
}
