package terminal

import "time"

// SessionRecord is the metadata remembered about a multiplexed session so
// that it can be described and reconnected after the registry lost it.
// Existence of the session itself is always decided by tmux.
type SessionRecord struct {
	Name      string
	Cwd       string
	Label     string
	Command   string
	CreatedAt time.Time
}

// SessionStore persists SessionRecords. Implementations must be safe for
// concurrent use.
type SessionStore interface {
	SaveSession(rec SessionRecord) error
	LookupSession(name string) (SessionRecord, bool, error)
	DeleteSession(name string) error
	ListSessions() ([]SessionRecord, error)
}

// Event types emitted to an EventSink.
const (
	EventCreated       = "terminal_created"
	EventClosed        = "terminal_closed"
	EventDetached      = "terminal_detached"
	EventReconnected   = "terminal_reconnected"
	EventCrashed       = "terminal_crashed"
	EventSessionKilled = "tmux_session_killed"
	EventBridgeAttach  = "bridge_attached"
	EventBridgeDetach  = "bridge_detached"
)

// Event is one lifecycle occurrence worth keeping an audit trail of.
type Event struct {
	Type        string
	HandleID    string
	SessionName string
	Details     string
}

// EventSink receives lifecycle events. Record must not block for long; it
// is called from the handle's output pump when a process crashes.
type EventSink interface {
	Record(ev Event)
}
