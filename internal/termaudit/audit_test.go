package termaudit

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/devdash/internal/database"
	"github.com/gluk-w/devdash/internal/terminal"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func newTestAuditor(t *testing.T) *Auditor {
	t.Helper()
	return NewAuditor(setupTestDB(t), 0)
}

// Compile-time check that the auditor can be handed to the manager.
var _ terminal.EventSink = (*Auditor)(nil)

func TestNewAuditor_DefaultRetention(t *testing.T) {
	a := newTestAuditor(t)
	if a.RetentionDays() != DefaultRetentionDays {
		t.Errorf("expected %d retention days, got %d", DefaultRetentionDays, a.RetentionDays())
	}
}

func TestRecord_WritesEvent(t *testing.T) {
	a := newTestAuditor(t)
	a.Record(terminal.Event{Type: terminal.EventCreated, HandleID: "h1", SessionName: "api", Details: "name=api"})

	res, err := a.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got total=%d len=%d", res.Total, len(res.Entries))
	}
	e := res.Entries[0]
	if e.EventType != terminal.EventCreated || e.HandleID != "h1" || e.SessionName != "api" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestBridgeHelpers(t *testing.T) {
	a := newTestAuditor(t)
	a.LogBridgeAttached("h1", "", "127.0.0.1")
	a.LogBridgeDetached("h1", "", "client", 1500*time.Millisecond)

	res, err := a.Query(QueryOptions{HandleID: "h1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("expected 2 entries, got %d", res.Total)
	}
	detach, err := a.Query(QueryOptions{EventType: terminal.EventBridgeDetach})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(detach.Entries) != 1 || detach.Entries[0].Details != "reason=client duration=1.5s" {
		t.Fatalf("unexpected detach entry: %+v", detach.Entries)
	}
}

func TestQuery_FiltersAndPagination(t *testing.T) {
	a := newTestAuditor(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		a.SetNowFunc(func() time.Time { return ts })
		a.Record(terminal.Event{Type: terminal.EventCreated, HandleID: "h", SessionName: "web"})
	}
	a.SetNowFunc(func() time.Time { return base.Add(time.Hour) })
	a.Record(terminal.Event{Type: terminal.EventClosed, HandleID: "other", SessionName: "api"})

	res, err := a.Query(QueryOptions{SessionName: "web", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Total != 5 || len(res.Entries) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", res.Total, len(res.Entries))
	}
	if !res.Entries[0].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("expected newest-first ordering, got %v", res.Entries[0].CreatedAt)
	}

	since := base.Add(30 * time.Minute)
	res, err = a.Query(QueryOptions{Since: &since})
	if err != nil {
		t.Fatalf("query since: %v", err)
	}
	if res.Total != 1 || res.Entries[0].EventType != terminal.EventClosed {
		t.Fatalf("since filter returned %+v", res.Entries)
	}
}

func TestQuery_LimitBounds(t *testing.T) {
	a := newTestAuditor(t)
	res, err := a.Query(QueryOptions{Limit: 5000, Offset: -3})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Limit != MaxLimit || res.Offset != 0 {
		t.Fatalf("limit=%d offset=%d", res.Limit, res.Offset)
	}
	if res.Entries == nil {
		t.Fatal("entries should be an empty slice, not nil")
	}
	res, _ = a.Query(QueryOptions{})
	if res.Limit != DefaultLimit {
		t.Fatalf("default limit = %d", res.Limit)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	a := newTestAuditor(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	a.SetNowFunc(func() time.Time { return now.AddDate(0, 0, -40) })
	a.Record(terminal.Event{Type: terminal.EventCreated, HandleID: "old"})
	a.SetNowFunc(func() time.Time { return now.AddDate(0, 0, -1) })
	a.Record(terminal.Event{Type: terminal.EventCreated, HandleID: "new"})

	a.SetNowFunc(func() time.Time { return now })
	n, err := a.PurgeOlderThan(0)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	res, _ := a.Query(QueryOptions{})
	if res.Total != 1 || res.Entries[0].HandleID != "new" {
		t.Fatalf("remaining entries: %+v", res.Entries)
	}
}
