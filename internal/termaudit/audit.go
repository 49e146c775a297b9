// Package termaudit records the terminal lifecycle audit trail.
//
// Events arrive from the terminal manager (created, closed, detached,
// reconnected, crashed, session killed) and from the streaming bridge
// (attached, detached). Each is written to the terminal_events table and
// echoed to the standard logger at the [term-audit] prefix.
package termaudit

import (
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/gluk-w/devdash/internal/database"
	"github.com/gluk-w/devdash/internal/logutil"
	"github.com/gluk-w/devdash/internal/terminal"
)

// DefaultRetentionDays is the default number of days to keep events.
const DefaultRetentionDays = 30

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Auditor writes and queries terminal audit events. It satisfies
// terminal.EventSink.
type Auditor struct {
	mu            sync.RWMutex
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time
}

// NewAuditor creates an Auditor writing to db. If retentionDays is 0,
// DefaultRetentionDays is used.
func NewAuditor(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Record implements terminal.EventSink. Write failures are logged.
func (a *Auditor) Record(ev terminal.Event) {
	a.Log(ev)
}

// Log writes an event to the database and the standard logger.
func (a *Auditor) Log(ev terminal.Event) error {
	row := database.TerminalEvent{
		EventType:   ev.Type,
		HandleID:    ev.HandleID,
		SessionName: ev.SessionName,
		Details:     ev.Details,
		CreatedAt:   a.nowFn(),
	}
	if err := a.db.Create(&row).Error; err != nil {
		log.Printf("[term-audit] failed to write event: %v", err)
		return err
	}
	log.Printf("[term-audit] %s handle=%s session=%s details=%s",
		ev.Type, ev.HandleID,
		logutil.SanitizeForLog(ev.SessionName),
		logutil.SanitizeForLog(ev.Details))
	return nil
}

// LogBridgeAttached records a streaming client connecting to a handle.
func (a *Auditor) LogBridgeAttached(handleID, sessionName, sourceIP string) {
	a.Log(terminal.Event{
		Type:        terminal.EventBridgeAttach,
		HandleID:    handleID,
		SessionName: sessionName,
		Details:     "ip=" + sourceIP,
	})
}

// LogBridgeDetached records a streaming client going away.
func (a *Auditor) LogBridgeDetached(handleID, sessionName, reason string, duration time.Duration) {
	a.Log(terminal.Event{
		Type:        terminal.EventBridgeDetach,
		HandleID:    handleID,
		SessionName: sessionName,
		Details:     "reason=" + reason + " duration=" + duration.Round(time.Millisecond).String(),
	})
}

// QueryOptions filters events.
type QueryOptions struct {
	EventType   string
	HandleID    string
	SessionName string
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}

// QueryResult holds matching events, newest first, plus pagination.
type QueryResult struct {
	Entries []database.TerminalEvent `json:"entries"`
	Total   int64                    `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// Query returns events matching opts.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tx := a.db.Model(&database.TerminalEvent{})
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.HandleID != "" {
		tx = tx.Where("handle_id = ?", opts.HandleID)
	}
	if opts.SessionName != "" {
		tx = tx.Where("session_name = ?", opts.SessionName)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	entries := []database.TerminalEvent{}
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan deletes events older than days, or the configured
// retention when days <= 0. It returns the number of rows deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("created_at < ?", cutoff).Delete(&database.TerminalEvent{})
	if result.Error != nil {
		log.Printf("[term-audit] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[term-audit] purged %d events older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	return a.retentionDays
}

// SetNowFunc replaces the clock.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.nowFn = fn
}
