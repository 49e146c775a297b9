package handlers

import (
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gluk-w/devdash/internal/logging"
)

func TestServerLogs_TailAndClear(t *testing.T) {
	logging.InitFile(filepath.Join(t.TempDir(), "devdash.log"))
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	log.Printf("[terminal] created handle-one")
	log.Printf("[terminal] created handle-two")

	w := httptest.NewRecorder()
	GetServerLogs(w, httptest.NewRequest(http.MethodGet, "/api/v1/server/logs?lines=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "handle-two") || strings.Contains(body, "handle-one") {
		t.Errorf("tail of 1 line = %s", body)
	}

	w = httptest.NewRecorder()
	ClearServerLogs(w, httptest.NewRequest(http.MethodDelete, "/api/v1/server/logs", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", w.Code)
	}
	tail, err := logging.ReadTail(10)
	if err != nil || tail != "" {
		t.Errorf("after clear: tail = %q, err = %v", tail, err)
	}
}

func TestHealthCheck(t *testing.T) {
	setupTestDB(t)
	setupTerminals(t)

	w := httptest.NewRecorder()
	HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	body := w.Body.String()
	for _, want := range []string{`"status":"healthy"`, `"database":"connected"`, `"pty":"available"`, `"tmux":"unavailable"`, `"terminals":0`} {
		if !strings.Contains(body, want) {
			t.Errorf("health body %s missing %s", body, want)
		}
	}
}
