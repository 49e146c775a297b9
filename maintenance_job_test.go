package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/devdash/internal/database"
	"github.com/gluk-w/devdash/internal/termaudit"
	"github.com/gluk-w/devdash/internal/terminal"
)

func setupTestDBMain(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "main.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestRunMaintenance_NilDependencies(t *testing.T) {
	// Should not panic without a manager or auditor
	runMaintenance(context.Background(), nil, nil)
}

func TestRunMaintenance_PurgesExpiredEvents(t *testing.T) {
	db := setupTestDBMain(t)
	auditor := termaudit.NewAuditor(db, 7)

	old := database.TerminalEvent{EventType: terminal.EventCreated, HandleID: "old", CreatedAt: time.Now().AddDate(0, 0, -10)}
	recent := database.TerminalEvent{EventType: terminal.EventCreated, HandleID: "recent", CreatedAt: time.Now()}
	db.Create(&old)
	db.Create(&recent)

	runMaintenance(context.Background(), nil, auditor)

	var ids []string
	db.Model(&database.TerminalEvent{}).Pluck("handle_id", &ids)
	if len(ids) != 1 || ids[0] != "recent" {
		t.Fatalf("remaining events = %v, want [recent]", ids)
	}
}

func TestRunMaintenance_UnavailableBackend(t *testing.T) {
	mgr := terminal.NewManager(terminal.Config{
		ProbePTY:      func() error { return terminal.ErrUnavailable },
		TmuxAvailable: func() bool { return false },
	})
	runMaintenance(context.Background(), mgr, nil)
	if mgr.Count() != 0 {
		t.Errorf("Count = %d, want 0", mgr.Count())
	}
}

func TestStartMaintenance_InvalidSchedule(t *testing.T) {
	if _, err := startMaintenance(context.Background(), "not a schedule", nil, nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartMaintenance_Valid(t *testing.T) {
	c, err := startMaintenance(context.Background(), "@every 1h", nil, nil)
	if err != nil {
		t.Fatalf("startMaintenance: %v", err)
	}
	c.Stop()
}
