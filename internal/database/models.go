package database

import "time"

// TerminalSession records metadata about a multiplexed terminal's tmux
// session. Whether the session still exists is decided by tmux; rows are
// only used to describe and reconnect sessions.
type TerminalSession struct {
	Name      string    `gorm:"primaryKey;size:255" json:"name"`
	Cwd       string    `gorm:"not null;default:''" json:"cwd"`
	Label     string    `gorm:"not null;default:''" json:"label"`
	Command   string    `gorm:"not null;default:''" json:"command"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TerminalEvent is one entry of the terminal audit trail.
type TerminalEvent struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType   string    `gorm:"not null;index" json:"event_type"`
	HandleID    string    `gorm:"not null;default:'';index" json:"handle_id"`
	SessionName string    `gorm:"not null;default:'';index" json:"session_name"`
	Details     string    `gorm:"type:text" json:"details"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}
