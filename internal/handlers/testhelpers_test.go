package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/devdash/internal/database"
	"github.com/gluk-w/devdash/internal/middleware"
	"github.com/gluk-w/devdash/internal/termaudit"
	"github.com/gluk-w/devdash/internal/terminal"
)

// setupTestDB opens a fresh database and installs it with an auditor.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	prevDB, prevAudit := database.DB, TermAudit
	database.DB = db
	TermAudit = termaudit.NewAuditor(db, 0)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		database.DB = prevDB
		TermAudit = prevAudit
	})
}

// setupTerminals installs a manager running /bin/sh without tmux. Tests
// are skipped on hosts without pseudo-terminal support.
func setupTerminals(t *testing.T) *terminal.Manager {
	t.Helper()
	cfg := terminal.Config{
		DefaultShell:  "/bin/sh",
		KillGrace:     500 * time.Millisecond,
		TmuxAvailable: func() bool { return false },
	}
	if TermAudit != nil {
		cfg.Events = TermAudit
	}
	m := terminal.NewManager(cfg)
	if err := m.Available(); err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	installManager(t, m)
	return m
}

func installManager(t *testing.T, m *terminal.Manager) {
	t.Helper()
	prev := Terminals
	Terminals = m
	t.Cleanup(func() {
		m.Stop()
		Terminals = prev
	})
}

// newTestServer serves the terminal API the way main.go wires it.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/terminals", func(r chi.Router) {
			r.Use(middleware.RequireTerminalBackend(Terminals.Available))
			r.Post("/", CreateTerminal)
			r.Get("/", ListTerminals)
			r.Get("/events", ListTerminalEvents)
			r.Get("/persisted", ListPersistedSessions)
			r.Delete("/persisted/{name}", KillPersistedSession)
			r.Get("/persisted/{name}/capture", CapturePersistedSession)
			r.Post("/reconnect", ReconnectTerminal)
			r.Get("/{id}", GetTerminal)
			r.Patch("/{id}", RenameTerminal)
			r.Delete("/{id}", CloseTerminal)
			r.Post("/{id}/write", WriteTerminal)
			r.Post("/{id}/resize", ResizeTerminal)
			r.Get("/{id}/preview", PreviewTerminal)
			r.Post("/{id}/detach", DetachTerminal)
			r.Get("/{id}/ws", TerminalWS)
		})
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

// doJSON sends body as JSON and decodes the response into a map.
func doJSON(t *testing.T, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, url, raw, err)
		}
	}
	return resp.StatusCode, out
}

// createTerminal creates a raw terminal through the API and returns its id.
func createTerminal(t *testing.T, ts *httptest.Server, body map[string]interface{}) string {
	t.Helper()
	if _, ok := body["cwd"]; !ok {
		body["cwd"] = t.TempDir()
	}
	if _, ok := body["useTmux"]; !ok {
		body["useTmux"] = false
	}
	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/terminals", body)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, body = %v", status, resp)
	}
	id, _ := resp["terminalId"].(string)
	if id == "" {
		t.Fatalf("create response has no terminalId: %v", resp)
	}
	return id
}

// waitForPreview polls the preview endpoint until a line contains want.
func waitForPreview(t *testing.T, ts *httptest.Server, id, query, want string) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var lines []string
	for time.Now().Before(deadline) {
		status, resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/terminals/"+id+"/preview"+query, nil)
		if status == http.StatusOK {
			lines = lines[:0]
			raw, _ := resp["lines"].([]interface{})
			for _, l := range raw {
				s, _ := l.(string)
				lines = append(lines, s)
			}
			for _, l := range lines {
				if strings.Contains(l, want) {
					return lines
				}
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("preview of %s never contained %q, last lines: %q", id, want, lines)
	return nil
}

func wsURL(ts *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/terminals/" + id + "/ws"
}
