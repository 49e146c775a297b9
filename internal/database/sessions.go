package database

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gluk-w/devdash/internal/terminal"
)

// SessionStore keeps terminal.SessionRecords in the terminal_sessions
// table.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore returns a store backed by db.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) SaveSession(rec terminal.SessionRecord) error {
	row := TerminalSession{
		Name:      rec.Name,
		Cwd:       rec.Cwd,
		Label:     rec.Label,
		Command:   rec.Command,
		CreatedAt: rec.CreatedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"cwd", "label", "command", "updated_at"}),
	}).Create(&row).Error
}

func (s *SessionStore) LookupSession(name string) (terminal.SessionRecord, bool, error) {
	var row TerminalSession
	err := s.db.Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return terminal.SessionRecord{}, false, nil
	}
	if err != nil {
		return terminal.SessionRecord{}, false, err
	}
	return toRecord(row), true, nil
}

func (s *SessionStore) DeleteSession(name string) error {
	return s.db.Where("name = ?", name).Delete(&TerminalSession{}).Error
}

func (s *SessionStore) ListSessions() ([]terminal.SessionRecord, error) {
	var rows []TerminalSession
	if err := s.db.Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]terminal.SessionRecord, len(rows))
	for i, row := range rows {
		out[i] = toRecord(row)
	}
	return out, nil
}

func toRecord(row TerminalSession) terminal.SessionRecord {
	return terminal.SessionRecord{
		Name:      row.Name,
		Cwd:       row.Cwd,
		Label:     row.Label,
		Command:   row.Command,
		CreatedAt: row.CreatedAt,
	}
}
