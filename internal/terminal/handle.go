package terminal

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a handle.
//
//	creating → running → {detached, closed, crashed}
//
// closed and crashed are terminal. A detached multiplexed session comes
// back only through Reconnect, which mints a new handle.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusDetached Status = "detached"
	StatusClosed   Status = "closed"
	StatusCrashed  Status = "crashed"
)

// BackendKind names a Backend variant on the wire.
type BackendKind string

const (
	KindRaw         BackendKind = "raw"
	KindMultiplexed BackendKind = "multiplexed"
)

// Backend is the tagged variant describing what owns a handle's process.
// It is sealed: the only implementations are RawBackend and
// MultiplexedBackend.
type Backend interface {
	Kind() BackendKind
	isBackend()
}

// RawBackend means the process is a direct child of the manager and dies
// with its handle.
type RawBackend struct{}

func (RawBackend) Kind() BackendKind { return KindRaw }
func (RawBackend) isBackend()        {}

// MultiplexedBackend means the process lives in a named tmux session that
// outlives the handle and the manager.
type MultiplexedBackend struct {
	SessionName string
}

func (MultiplexedBackend) Kind() BackendKind { return KindMultiplexed }
func (MultiplexedBackend) isBackend()        {}

// sessionNameOf returns the tmux session name for multiplexed backends and
// "" for raw ones.
func sessionNameOf(b Backend) string {
	switch v := b.(type) {
	case MultiplexedBackend:
		return v.SessionName
	case RawBackend:
		return ""
	}
	return ""
}

// endReason records why a handle's process went away. Anything other than
// endNone means the manager asked for it, so the exit is not a crash.
type endReason int

const (
	endNone endReason = iota
	endClose
	endDetach
	endKilled
	endShutdown
)

// Handle is one managed terminal. Immutable creation parameters are plain
// fields; everything that changes after creation is guarded by mu.
type Handle struct {
	ID          string
	Cwd         string
	Command     string
	Args        []string
	Env         map[string]string
	Backend     Backend
	CreatedAt   time.Time
	Reconnected bool

	proc     *process
	ring     *RingBuffer
	recorder *Recorder

	mu           sync.Mutex
	name         string
	status       Status
	lastActivity time.Time
	ending       endReason
	exitCode     int
	exitReason   string
	subs         map[*Subscription]struct{}

	// writeMu serialises input so bytes from concurrent writers are never
	// interleaved mid-chunk.
	writeMu sync.Mutex
	// done is closed when the output pump has finished.
	done chan struct{}
}

// Info is a point-in-time copy of a handle's metadata.
type Info struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Cwd          string            `json:"cwd"`
	Command      string            `json:"command"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	BackendKind  BackendKind       `json:"backendKind"`
	SessionName  string            `json:"tmuxSession,omitempty"`
	PID          int               `json:"pid"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
	Reconnected  bool              `json:"reconnected,omitempty"`
	Bridges      int               `json:"bridges"`
	ExitCode     *int              `json:"exitCode,omitempty"`
	ExitReason   string            `json:"exitReason,omitempty"`
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.infoLocked()
}

func (h *Handle) infoLocked() Info {
	info := Info{
		ID:           h.ID,
		Name:         h.name,
		Cwd:          h.Cwd,
		Command:      h.Command,
		Args:         append([]string(nil), h.Args...),
		BackendKind:  h.Backend.Kind(),
		SessionName:  sessionNameOf(h.Backend),
		Status:       h.status,
		CreatedAt:    h.CreatedAt,
		LastActivity: h.lastActivity,
		Reconnected:  h.Reconnected,
		Bridges:      len(h.subs),
	}
	if len(h.Env) > 0 {
		info.Env = make(map[string]string, len(h.Env))
		for k, v := range h.Env {
			info.Env[k] = v
		}
	}
	if h.proc != nil {
		info.PID = h.proc.Pid()
	}
	if h.status == StatusCrashed {
		code := h.exitCode
		info.ExitCode = &code
		info.ExitReason = h.exitReason
	}
	return info
}

// Status returns the handle's current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handle) touch(now time.Time) {
	h.mu.Lock()
	h.lastActivity = now
	h.mu.Unlock()
}
