package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/devdash/internal/logutil"
	"github.com/gluk-w/devdash/internal/tmux"
)

// PersistedSession is a tmux session found on the dedicated server,
// whether or not the registry currently holds a handle for it.
type PersistedSession struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Attached  int       `json:"attached"`
	Cwd       string    `json:"cwd,omitempty"`
	Label     string    `json:"label,omitempty"`
	// Handles lists registry handles currently attached to the session.
	Handles []string `json:"handles,omitempty"`
}

func (m *Manager) requireTmux(op, target string) error {
	if m.unavailable != nil {
		return m.unavailable
	}
	if !m.tmuxOK {
		return newError(op, KindCapability, target, "tmux is not available on this host")
	}
	return nil
}

// ListPersisted enumerates the sessions on the dedicated tmux server. It
// does not consult the registry to decide what exists; stored metadata
// and live handle ids are only used to describe what tmux reports.
func (m *Manager) ListPersisted(ctx context.Context) ([]PersistedSession, error) {
	if m.unavailable != nil {
		return nil, m.unavailable
	}
	if !m.tmuxOK {
		return []PersistedSession{}, nil
	}
	sessions, err := m.tmux.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tmux sessions: %w", err)
	}

	attached := make(map[string][]string)
	m.mu.RLock()
	for id, h := range m.handles {
		if name := sessionNameOf(h.Backend); name != "" {
			attached[name] = append(attached[name], id)
		}
	}
	m.mu.RUnlock()

	result := make([]PersistedSession, 0, len(sessions))
	for _, s := range sessions {
		ps := PersistedSession{
			Name:      s.Name,
			CreatedAt: s.Created,
			Attached:  s.Attached,
			Handles:   attached[s.Name],
		}
		sort.Strings(ps.Handles)
		if m.cfg.Store != nil {
			if rec, found, err := m.cfg.Store.LookupSession(s.Name); err == nil && found {
				ps.Cwd = rec.Cwd
				ps.Label = rec.Label
			}
		}
		result = append(result, ps)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Reconnect adopts an existing tmux session into a new running handle.
// It never creates a session: if sessionName does not exist the call
// fails with KindNotFound. An empty cwd falls back to the directory
// recorded when the session was created.
func (m *Manager) Reconnect(ctx context.Context, sessionName, cwd string, env map[string]string) (Info, error) {
	const op = "terminal.Reconnect"
	sessionName = strings.TrimSpace(sessionName)
	if err := m.requireTmux(op, sessionName); err != nil {
		return Info{}, err
	}
	if sessionName == "" {
		return Info{}, newError(op, KindValidation, "", "sessionName is required")
	}
	if !m.tmux.HasSession(ctx, sessionName) {
		return Info{}, newError(op, KindNotFound, sessionName, "tmux session does not exist")
	}

	label, command := sessionName, ""
	if m.cfg.Store != nil {
		if rec, found, err := m.cfg.Store.LookupSession(sessionName); err == nil && found {
			if cwd == "" {
				cwd = rec.Cwd
			}
			if rec.Label != "" {
				label = rec.Label
			}
			command = rec.Command
		}
	}
	if cwd == "" {
		cwd = fallbackDir()
	}
	if err := checkDir(cwd); err != nil {
		return Info{}, &Error{Op: op, Kind: KindValidation, Target: sessionName, Err: err}
	}

	cols, rows := ClampSize(0, 0)
	proc, err := m.attachClient(sessionName, cwd, env, cols, rows)
	if err != nil {
		return Info{}, &Error{Op: op, Kind: KindSpawn, Target: sessionName, Err: err}
	}

	id := uuid.New().String()
	h := m.newHandle(id, label, cwd, command, nil, env)
	h.Backend = MultiplexedBackend{SessionName: sessionName}
	h.Reconnected = true
	if h.Command == "" {
		h.Command = "tmux attach-session"
	}
	m.start(h, proc, cols, rows)

	info := h.Info()
	log.Printf("[terminal] reconnected %s to tmux session %s", id, logutil.SanitizeForLog(sessionName))
	m.emit(Event{Type: EventReconnected, HandleID: id, SessionName: sessionName})
	return info, nil
}

func fallbackDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "/"
}

// Detach releases a multiplexed handle without stopping its tmux session.
// The registry entry is removed; the session can be adopted again with
// Reconnect. Raw handles cannot be detached.
func (m *Manager) Detach(id string) (Info, error) {
	const op = "terminal.Detach"
	if m.unavailable != nil {
		return Info{}, m.unavailable
	}
	h := m.lookup(id)
	if h == nil {
		return Info{}, notFound(op, id)
	}

	var session string
	switch b := h.Backend.(type) {
	case RawBackend:
		return Info{}, newError(op, KindCapability, id,
			"raw terminals have no session to detach from; close the terminal instead")
	case MultiplexedBackend:
		session = b.SessionName
	default:
		return Info{}, newError(op, KindCapability, id, "unsupported backend %T", b)
	}

	h.mu.Lock()
	switch h.status {
	case StatusRunning:
		h.ending = endDetach
		h.status = StatusDetached
	case StatusCrashed:
		h.mu.Unlock()
		return Info{}, newError(op, KindCrash, id, "terminal process has exited")
	default:
		h.mu.Unlock()
		return Info{}, notFound(op, id)
	}
	h.mu.Unlock()
	m.remove(id)

	// SIGHUP makes the tmux client detach; the session keeps running.
	h.proc.terminate(m.cfg.KillGrace)
	m.waitPump(h)

	log.Printf("[terminal] detached %s from tmux session %s", id, logutil.SanitizeForLog(session))
	m.emit(Event{Type: EventDetached, HandleID: id, SessionName: session})
	return h.Info(), nil
}

// KillSession terminates a tmux session by name, independent of the
// registry. Handles attached to it are closed and removed; their exit is
// not reported as a crash.
func (m *Manager) KillSession(ctx context.Context, name string) error {
	const op = "terminal.KillSession"
	if err := m.requireTmux(op, name); err != nil {
		return err
	}
	if !m.tmux.HasSession(ctx, name) {
		return newError(op, KindNotFound, name, "tmux session does not exist")
	}

	attached := m.takeSessionHandles(name)

	err := m.tmux.KillSession(ctx, name)
	if err != nil && !errors.Is(err, tmux.ErrSessionNotFound) {
		return fmt.Errorf("kill tmux session %q: %w", name, err)
	}
	m.stopHandles(attached)
	m.forgetSession(name)

	log.Printf("[terminal] killed tmux session %s (%d handles)", logutil.SanitizeForLog(name), len(attached))
	m.emit(Event{Type: EventSessionKilled, SessionName: name,
		Details: fmt.Sprintf("handles=%d", len(attached))})
	return nil
}

// CapturePane returns the last lines of a tmux session's screen and
// scrollback. It works for sessions without a registry handle.
func (m *Manager) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	const op = "terminal.CapturePane"
	if err := m.requireTmux(op, name); err != nil {
		return "", err
	}
	out, err := m.tmux.CapturePane(ctx, name, lines)
	if errors.Is(err, tmux.ErrSessionNotFound) {
		return "", newError(op, KindNotFound, name, "tmux session does not exist")
	}
	return out, err
}

// PruneRecords deletes stored session metadata for tmux sessions that no
// longer exist. It returns the number of records removed.
func (m *Manager) PruneRecords(ctx context.Context) (int, error) {
	if m.cfg.Store == nil || !m.TmuxAvailable() {
		return 0, nil
	}
	records, err := m.cfg.Store.ListSessions()
	if err != nil {
		return 0, err
	}
	sessions, err := m.tmux.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		live[s.Name] = true
	}
	pruned := 0
	for _, rec := range records {
		if live[rec.Name] {
			continue
		}
		if err := m.cfg.Store.DeleteSession(rec.Name); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// takeSessionHandles removes every handle attached to the named tmux
// session from the registry and marks the running ones as killed, so their
// exit is not reported as a crash.
func (m *Manager) takeSessionHandles(name string) []*Handle {
	var attached []*Handle
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range m.handles {
		if sessionNameOf(h.Backend) != name {
			continue
		}
		h.mu.Lock()
		if h.status == StatusRunning {
			h.ending = endKilled
			h.status = StatusClosed
		}
		h.mu.Unlock()
		delete(m.handles, id)
		attached = append(attached, h)
	}
	return attached
}

func (m *Manager) stopHandles(handles []*Handle) {
	for _, h := range handles {
		h.proc.terminate(m.cfg.KillGrace)
		m.waitPump(h)
	}
}
