package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/devdash/internal/logutil"
	"github.com/gluk-w/devdash/internal/tmux"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultKillGrace        = 2 * time.Second
	DefaultCrashedRetention = 30 * time.Minute
)

// Config configures a Manager.
type Config struct {
	// TmuxSocket is the socket of the dedicated tmux server. Empty uses
	// tmux's default server.
	TmuxSocket string
	// TmuxConfig is passed as "-f" when the tmux server starts.
	TmuxConfig string
	// DefaultShell runs when a request has no command.
	DefaultShell string
	// PreviewLines is the ring buffer capacity per handle.
	PreviewLines int
	// KillGrace is how long a process has to exit after SIGTERM.
	KillGrace time.Duration
	// CrashedRetention is how long crashed handles stay readable.
	CrashedRetention time.Duration
	// RecordingDir enables asciicast recording when non-empty.
	RecordingDir string

	Store  SessionStore
	Events EventSink

	// ProbePTY replaces the startup capability probe.
	ProbePTY func() error
	// TmuxAvailable replaces tmux discovery on PATH.
	TmuxAvailable func() bool
}

// CreateRequest describes a terminal to spawn.
type CreateRequest struct {
	Cwd             string
	Name            string
	Command         string
	Args            []string
	Env             map[string]string
	UseTmux         bool
	TmuxSessionName string
	Cols            int
	Rows            int
}

// CloseResult reports what Close terminated.
type CloseResult struct {
	Closed bool
	// KilledSession is the tmux session that was killed, if any.
	KilledSession string
}

// Manager is the registry of live terminal handles. It owns every handle's
// process and output pump; callers mutate handles only through its
// methods.
type Manager struct {
	cfg         Config
	tmux        *tmux.Server
	unavailable error
	tmuxOK      bool
	now         func() time.Time

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewManager creates a Manager. The PTY capability is probed here, once;
// if it fails every later operation returns ErrUnavailable.
func NewManager(cfg Config) *Manager {
	if cfg.DefaultShell == "" {
		cfg.DefaultShell = defaultShell()
	}
	if cfg.PreviewLines <= 0 {
		cfg.PreviewLines = DefaultPreviewLines
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.CrashedRetention <= 0 {
		cfg.CrashedRetention = DefaultCrashedRetention
	}
	probe := cfg.ProbePTY
	if probe == nil {
		probe = probePTY
	}
	lookup := cfg.TmuxAvailable
	if lookup == nil {
		lookup = tmux.Available
	}

	m := &Manager{
		cfg:     cfg,
		tmux:    tmux.NewServer(cfg.TmuxSocket, cfg.TmuxConfig),
		now:     time.Now,
		handles: make(map[string]*Handle),
	}
	if err := probe(); err != nil {
		log.Printf("[terminal] pty probe failed, terminal backend disabled: %v", err)
		m.unavailable = ErrUnavailable
		return m
	}
	m.tmuxOK = lookup()
	if !m.tmuxOK {
		log.Printf("[terminal] tmux not found on PATH, terminals will run without persistence")
	}
	return m
}

// Available returns nil when the PTY capability is present, ErrUnavailable
// otherwise.
func (m *Manager) Available() error {
	return m.unavailable
}

// TmuxAvailable reports whether multiplexed terminals can be created.
func (m *Manager) TmuxAvailable() bool {
	return m.unavailable == nil && m.tmuxOK
}

// Tmux returns the dedicated tmux server.
func (m *Manager) Tmux() *tmux.Server {
	return m.tmux
}

// Create validates req, spawns its backend and registers a running handle.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Info, error) {
	const op = "terminal.Create"
	if m.unavailable != nil {
		return Info{}, m.unavailable
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Info{}, newError(op, KindValidation, "", "name is required")
	}
	if err := checkDir(req.Cwd); err != nil {
		return Info{}, &Error{Op: op, Kind: KindValidation, Target: req.Cwd, Err: err}
	}
	cols, rows := ClampSize(req.Cols, req.Rows)

	id := uuid.New().String()
	h := m.newHandle(id, name, req.Cwd, req.Command, req.Args, req.Env)

	var backend Backend = RawBackend{}
	if req.UseTmux {
		if m.tmuxOK {
			backend = MultiplexedBackend{SessionName: m.sessionNameFor(req, id)}
		} else {
			log.Printf("[terminal] tmux requested for %s but unavailable, using raw backend", id)
		}
	}
	h.Backend = backend

	var (
		proc *process
		err  error
	)
	switch b := backend.(type) {
	case MultiplexedBackend:
		proc, err = m.spawnMultiplexed(ctx, h, b.SessionName, cols, rows)
	case RawBackend:
		proc, err = m.spawnRaw(h, cols, rows)
	}
	if err != nil {
		// creating → crashed: the handle was never registered.
		return Info{}, err
	}
	if h.Command == "" {
		h.Command = m.cfg.DefaultShell
	}

	m.start(h, proc, cols, rows)
	if b, ok := backend.(MultiplexedBackend); ok && m.cfg.Store != nil {
		rec := SessionRecord{Name: b.SessionName, Cwd: h.Cwd, Label: name, Command: h.Command, CreatedAt: h.CreatedAt}
		if err := m.cfg.Store.SaveSession(rec); err != nil {
			log.Printf("[terminal] failed to save session record %s: %v", b.SessionName, err)
		}
	}

	info := h.Info()
	log.Printf("[terminal] created %s %q (%s, pid %d) in %s",
		id, logutil.SanitizeForLog(name), backend.Kind(), info.PID, logutil.SanitizeForLog(h.Cwd))
	m.emit(Event{Type: EventCreated, HandleID: id, SessionName: info.SessionName,
		Details: fmt.Sprintf("name=%s backend=%s cwd=%s", name, backend.Kind(), h.Cwd)})
	return info, nil
}

func checkDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("cwd is required")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cwd %q does not exist", dir)
	}
	if !st.IsDir() {
		return fmt.Errorf("cwd %q is not a directory", dir)
	}
	return nil
}

func (m *Manager) newHandle(id, name, cwd, command string, args []string, env map[string]string) *Handle {
	now := m.now()
	h := &Handle{
		ID:        id,
		Cwd:       cwd,
		Command:   command,
		Args:      append([]string(nil), args...),
		Backend:   RawBackend{},
		CreatedAt: now,
		ring:      NewRingBuffer(m.cfg.PreviewLines),

		name:         name,
		status:       StatusCreating,
		lastActivity: now,
		subs:         make(map[*Subscription]struct{}),
		done:         make(chan struct{}),
	}
	if len(env) > 0 {
		h.Env = make(map[string]string, len(env))
		for k, v := range env {
			h.Env[k] = v
		}
	}
	return h
}

// sessionNameFor derives the tmux session name for a new multiplexed
// handle: the explicit name, else the sanitised label, else an id prefix.
func (m *Manager) sessionNameFor(req CreateRequest, id string) string {
	if n := tmux.SanitizeSessionName(req.TmuxSessionName); n != "" {
		return n
	}
	if n := tmux.SanitizeSessionName(req.Name); n != "" {
		return n
	}
	return "dd-" + id[:8]
}

func (m *Manager) spawnRaw(h *Handle, cols, rows uint16) (*process, error) {
	argv := commandLine(h.Command, h.Args, m.cfg.DefaultShell)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = h.Cwd
	cmd.Env = buildEnv(os.Environ(), h.Env)
	proc, err := startProcess(cmd, cols, rows)
	if err != nil {
		return nil, &Error{Op: "terminal.Create", Kind: KindSpawn, Target: h.ID,
			Err: fmt.Errorf("start %s: %w", argv[0], err)}
	}
	return proc, nil
}

func (m *Manager) spawnMultiplexed(ctx context.Context, h *Handle, session string, cols, rows uint16) (*process, error) {
	const op = "terminal.Create"
	if m.tmux.HasSession(ctx, session) {
		return nil, newError(op, KindValidation, session,
			"tmux session %q already exists; reconnect to it instead", session)
	}
	argv := commandLine(h.Command, h.Args, m.cfg.DefaultShell)
	// tmux sets TERM inside panes itself; only the caller's env is passed.
	err := m.tmux.NewSession(ctx, session, tmux.NewSessionOptions{
		Dir:     h.Cwd,
		Cols:    cols,
		Rows:    rows,
		Env:     envPairs(h.Env),
		Command: argv,
	})
	if err != nil {
		return nil, &Error{Op: op, Kind: KindSpawn, Target: session, Err: err}
	}
	if err := m.tmux.SetOption(ctx, session, "status", "off"); err != nil {
		log.Printf("[terminal] could not hide tmux status line for %s: %v", session, err)
	}

	proc, err := m.attachClient(session, h.Cwd, nil, cols, rows)
	if err != nil {
		if kerr := m.tmux.KillSession(ctx, session); kerr != nil {
			log.Printf("[terminal] failed to clean up session %s after attach failure: %v", session, kerr)
		}
		return nil, &Error{Op: op, Kind: KindSpawn, Target: session, Err: err}
	}
	return proc, nil
}

// attachClient runs `tmux attach-session` for session on a fresh PTY.
func (m *Manager) attachClient(session, cwd string, env map[string]string, cols, rows uint16) (*process, error) {
	cmd := m.tmux.AttachCommand(session)
	cmd.Dir = cwd
	cmd.Env = buildEnv(os.Environ(), env)
	proc, err := startProcess(cmd, cols, rows)
	if err != nil {
		return nil, fmt.Errorf("attach to tmux session %q: %w", session, err)
	}
	return proc, nil
}

// start moves h to running, registers it and launches its output pump.
func (m *Manager) start(h *Handle, proc *process, cols, rows uint16) {
	h.proc = proc
	if m.cfg.RecordingDir != "" {
		rec, err := NewRecorder(m.cfg.RecordingDir, h.ID, h.name, cols, rows)
		if err != nil {
			log.Printf("[terminal] recording disabled for %s: %v", h.ID, err)
		} else {
			h.recorder = rec
			log.Printf("[terminal] recording %s to %s", h.ID, rec.Path())
		}
	}

	h.mu.Lock()
	h.status = StatusRunning
	h.lastActivity = m.now()
	h.mu.Unlock()

	m.mu.Lock()
	m.handles[h.ID] = h
	m.mu.Unlock()

	go m.pump(h)
	go func() {
		<-proc.exited
		select {
		case <-h.done:
		case <-time.After(drainTimeout):
			proc.closePTY()
		}
	}()
}

// pump is the single producer for a handle: it reads the PTY and fans each
// chunk out to the ring buffer, the recorder and every subscriber. It runs
// until the PTY reports EOF or an error.
func (m *Manager) pump(h *Handle) {
	defer close(h.done)
	buf := make([]byte, 32*1024)
	for {
		n, err := h.proc.pty.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			h.ring.Write(data)
			if h.recorder != nil {
				h.recorder.RecordOutput(data)
			}
			m.broadcast(h, data)
		}
		if err != nil {
			break
		}
	}
	m.finish(h)
}

func (m *Manager) broadcast(h *Handle, data []byte) {
	var slow []*Subscription
	h.mu.Lock()
	h.lastActivity = m.now()
	for s := range h.subs {
		if !s.send(data) {
			delete(h.subs, s)
			slow = append(slow, s)
		}
	}
	h.mu.Unlock()
	for _, s := range slow {
		log.Printf("[terminal] dropping slow subscriber on %s", h.ID)
		s.end(ReasonSlow, "")
	}
}

// finish settles a handle's final state once its output has ended.
func (m *Manager) finish(h *Handle) {
	select {
	case <-h.proc.exited:
	case <-time.After(m.cfg.KillGrace):
		// The PTY failed while the process is still running.
		h.proc.terminate(m.cfg.KillGrace)
	}
	h.proc.closePTY()
	code, reason := h.proc.exitStatus()

	h.mu.Lock()
	ending := h.ending
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	switch {
	case ending == endNone:
		h.status = StatusCrashed
		h.exitCode = code
		h.exitReason = reason
		h.lastActivity = m.now()
	case ending == endDetach, ending == endShutdown && h.Backend.Kind() == KindMultiplexed:
		h.status = StatusDetached
	default:
		h.status = StatusClosed
	}
	h.mu.Unlock()

	subReason, diagnostic := ReasonClosed, ""
	switch ending {
	case endNone:
		subReason = ReasonExited
		diagnostic = fmt.Sprintf("\r\n[process %s]\r\n", reason)
	case endDetach, endShutdown:
		subReason = ReasonDetached
	}
	for s := range subs {
		s.end(subReason, diagnostic)
	}
	if h.recorder != nil {
		h.recorder.Close()
	}

	if ending == endNone {
		log.Printf("[terminal] %s crashed: %s", h.ID, reason)
		m.emit(Event{Type: EventCrashed, HandleID: h.ID, SessionName: sessionNameOf(h.Backend), Details: reason})
	}
}

func (m *Manager) lookup(id string) *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handles[id]
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.handles, id)
	m.mu.Unlock()
}

func (m *Manager) emit(ev Event) {
	if m.cfg.Events != nil {
		m.cfg.Events.Record(ev)
	}
}

func notFound(op, id string) *Error {
	return newError(op, KindNotFound, id, "terminal not found")
}

// List returns a snapshot of every registered handle, oldest first.
func (m *Manager) List() ([]Info, error) {
	if m.unavailable != nil {
		return nil, m.unavailable
	}
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

// Get returns the handle with the given id.
func (m *Manager) Get(id string) (Info, error) {
	if m.unavailable != nil {
		return Info{}, m.unavailable
	}
	h := m.lookup(id)
	if h == nil {
		return Info{}, notFound("terminal.Get", id)
	}
	return h.Info(), nil
}

// Rename changes a handle's label.
func (m *Manager) Rename(id, name string) (Info, error) {
	const op = "terminal.Rename"
	if m.unavailable != nil {
		return Info{}, m.unavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Info{}, newError(op, KindValidation, id, "name is required")
	}
	h := m.lookup(id)
	if h == nil {
		return Info{}, notFound(op, id)
	}
	h.mu.Lock()
	h.name = name
	info := h.infoLocked()
	h.mu.Unlock()

	if b, ok := h.Backend.(MultiplexedBackend); ok && m.cfg.Store != nil {
		rec, found, err := m.cfg.Store.LookupSession(b.SessionName)
		if err == nil && found {
			rec.Label = name
			if err := m.cfg.Store.SaveSession(rec); err != nil {
				log.Printf("[terminal] failed to update label for %s: %v", b.SessionName, err)
			}
		}
	}
	return info, nil
}

// Close terminates a handle's backend and removes it from the registry.
// For multiplexed handles the tmux session is killed as well. Closing a
// crashed handle discards its retained output.
func (m *Manager) Close(ctx context.Context, id string) (CloseResult, error) {
	const op = "terminal.Close"
	if m.unavailable != nil {
		return CloseResult{}, m.unavailable
	}
	h := m.lookup(id)
	if h == nil {
		return CloseResult{}, notFound(op, id)
	}

	h.mu.Lock()
	switch h.status {
	case StatusRunning:
		h.ending = endClose
		h.status = StatusClosed
	case StatusCrashed:
	default:
		h.mu.Unlock()
		return CloseResult{}, notFound(op, id)
	}
	h.mu.Unlock()
	m.remove(id)

	var result CloseResult
	result.Closed = true
	var mirrors []*Handle
	if b, ok := h.Backend.(MultiplexedBackend); ok {
		// Other handles reconnected to the same session go down with it.
		mirrors = m.takeSessionHandles(b.SessionName)
		switch err := m.tmux.KillSession(ctx, b.SessionName); {
		case err == nil:
			result.KilledSession = b.SessionName
		case errors.Is(err, tmux.ErrSessionNotFound):
		default:
			log.Printf("[terminal] failed to kill tmux session %s: %v", b.SessionName, err)
		}
		m.forgetSession(b.SessionName)
	}
	h.proc.terminate(m.cfg.KillGrace)
	m.waitPump(h)
	m.stopHandles(mirrors)

	log.Printf("[terminal] closed %s", id)
	m.emit(Event{Type: EventClosed, HandleID: id, SessionName: result.KilledSession})
	for _, mh := range mirrors {
		m.emit(Event{Type: EventClosed, HandleID: mh.ID, SessionName: result.KilledSession})
	}
	return result, nil
}

// waitPump waits for a handle's pump to finish, bounded so a stuck reader
// never blocks the caller indefinitely.
func (m *Manager) waitPump(h *Handle) {
	select {
	case <-h.done:
	case <-time.After(m.cfg.KillGrace + drainTimeout):
		h.proc.closePTY()
	}
}

func (m *Manager) forgetSession(name string) {
	if m.cfg.Store == nil {
		return
	}
	if err := m.cfg.Store.DeleteSession(name); err != nil {
		log.Printf("[terminal] failed to delete session record %s: %v", name, err)
	}
}

// runningHandle returns the handle if it exists and is running.
func (m *Manager) runningHandle(id string) *Handle {
	h := m.lookup(id)
	if h == nil || h.Status() != StatusRunning {
		return nil
	}
	return h
}

// Write sends input to a handle's process. It returns false when the
// handle is unknown, closed or crashed.
func (m *Manager) Write(id string, data []byte) (bool, error) {
	if m.unavailable != nil {
		return false, m.unavailable
	}
	h := m.runningHandle(id)
	if h == nil {
		return false, nil
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.Status() != StatusRunning {
		return false, nil
	}
	if _, err := h.proc.pty.Write(data); err != nil {
		log.Printf("[terminal] write to %s failed: %v", id, err)
		return false, nil
	}
	if h.recorder != nil {
		h.recorder.RecordInput(data)
	}
	h.touch(m.now())
	return true, nil
}

// Resize changes a handle's terminal size. Sizes are clamped to the
// allowed range. It returns false when the handle is unknown, closed or
// crashed.
func (m *Manager) Resize(id string, cols, rows int) (bool, error) {
	if m.unavailable != nil {
		return false, m.unavailable
	}
	h := m.runningHandle(id)
	if h == nil {
		return false, nil
	}
	c, r := ClampSize(cols, rows)
	if err := h.proc.resize(c, r); err != nil {
		log.Printf("[terminal] resize of %s failed: %v", id, err)
		return false, nil
	}
	if h.recorder != nil {
		h.recorder.RecordResize(c, r)
	}
	h.touch(m.now())
	return true, nil
}

// RecentOutput returns up to maxLines of the handle's most recent output
// entries, oldest first. Crashed handles stay readable until removed.
func (m *Manager) RecentOutput(id string, maxLines int) ([]string, error) {
	if m.unavailable != nil {
		return nil, m.unavailable
	}
	h := m.lookup(id)
	if h == nil {
		return nil, notFound("terminal.RecentOutput", id)
	}
	lines := h.ring.Lines(maxLines)
	if lines == nil {
		lines = []string{}
	}
	return lines, nil
}

// Attach subscribes to a handle's live output. A raw handle keeps a single
// subscriber, so attaching ends any existing one with ReasonSuperseded.
// Multiplexed handles accept any number of subscribers.
func (m *Manager) Attach(id string) (*Subscription, error) {
	const op = "terminal.Attach"
	if m.unavailable != nil {
		return nil, m.unavailable
	}
	h := m.lookup(id)
	if h == nil {
		return nil, notFound(op, id)
	}

	sub := newSubscription(id, func(s *Subscription) {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
	})

	var superseded []*Subscription
	h.mu.Lock()
	if h.status != StatusRunning {
		status := h.status
		h.mu.Unlock()
		if status == StatusCrashed {
			return nil, newError(op, KindCrash, id, "terminal process has exited")
		}
		return nil, notFound(op, id)
	}
	switch h.Backend.(type) {
	case RawBackend:
		for s := range h.subs {
			superseded = append(superseded, s)
		}
		h.subs = map[*Subscription]struct{}{sub: {}}
	case MultiplexedBackend:
		h.subs[sub] = struct{}{}
	}
	h.mu.Unlock()

	for _, s := range superseded {
		s.end(ReasonSuperseded, "")
	}
	return sub, nil
}

// Count returns the number of registered handles.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// CleanupIdle removes crashed handles whose retention period has passed.
// It should be called periodically.
func (m *Manager) CleanupIdle() int {
	cutoff := m.now().Add(-m.cfg.CrashedRetention)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, h := range m.handles {
		h.mu.Lock()
		expired := h.status == StatusCrashed && h.lastActivity.Before(cutoff)
		h.mu.Unlock()
		if expired {
			delete(m.handles, id)
			removed++
			log.Printf("[terminal] removed crashed terminal %s", id)
		}
	}
	return removed
}

// Stop shuts every handle down: multiplexed handles are detached so their
// tmux sessions survive the restart, raw handles are terminated.
func (m *Manager) Stop() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = make(map[string]*Handle)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		h.mu.Lock()
		running := h.status == StatusRunning
		if running {
			h.ending = endShutdown
		}
		h.mu.Unlock()
		if !running {
			continue
		}
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			h.proc.terminate(m.cfg.KillGrace)
			m.waitPump(h)
		}(h)
	}
	wg.Wait()
	log.Printf("[terminal] stopped %d terminals", len(handles))
}
