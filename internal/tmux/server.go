// Package tmux provides a typed interface to the tmux server that backs
// multiplexed terminal sessions.
//
// devdash keeps its sessions on a dedicated tmux server identified by a
// socket path so that they never mix with the operator's personal tmux
// sessions. Every command issued through [Server] carries the -S flag,
// and sessions are addressed with the exact-match "=name" target syntax
// so that a lookup for "api" can never resolve to "api-worker".
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when a named session does not exist on
// the server.
var ErrSessionNotFound = errors.New("tmux session not found")

var (
	lookOnce  sync.Once
	lookPath  string
	lookError error
)

// Available reports whether a tmux binary can be found on PATH. The
// lookup runs once per process.
func Available() bool {
	lookOnce.Do(func() {
		lookPath, lookError = exec.LookPath("tmux")
	})
	return lookError == nil
}

// Server represents a tmux server identified by its Unix socket path.
// An empty socket path targets tmux's default server.
type Server struct {
	socketPath string
	configFile string // passed as "-f <path>" on new-session; empty = tmux default
}

// NewServer returns a Server that targets the given socket path.
//
// configFile controls which configuration file tmux loads when the server
// starts. Pass "/dev/null" to keep the operator's ~/.tmux.conf out of the
// sessions devdash creates.
func NewServer(socketPath, configFile string) *Server {
	return &Server{
		socketPath: socketPath,
		configFile: configFile,
	}
}

// SocketPath returns the Unix socket path that identifies this server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// SessionInfo describes one session as reported by list-sessions.
type SessionInfo struct {
	Name     string
	Created  time.Time
	Attached int
}

// NewSessionOptions configures a new detached session.
type NewSessionOptions struct {
	// Dir is the working directory of the session's initial pane.
	Dir string
	// Cols and Rows set the initial window size. Zero leaves tmux's default.
	Cols uint16
	Rows uint16
	// Env is a list of KEY=VALUE pairs set in the session environment.
	Env []string
	// Command is the program and arguments to run. Empty runs the
	// server's default shell.
	Command []string
}

// Target returns the exact-match target string for a session name.
func Target(sessionName string) string {
	return "=" + sessionName
}

// PaneTarget returns the exact-match target for the active pane of a
// session. Pane-scoped commands such as capture-pane and set-option do not
// resolve a bare "=name".
func PaneTarget(sessionName string) string {
	return "=" + sessionName + ":"
}

func (s *Server) baseArgs() []string {
	if s.socketPath == "" {
		return nil
	}
	return []string{"-S", s.socketPath}
}

// NewSession creates a detached session. The config file flag is only
// passed here because new-session is the command that may start the
// server.
func (s *Server) NewSession(ctx context.Context, sessionName string, opts NewSessionOptions) error {
	var args []string
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, s.baseArgs()...)
	args = append(args, "new-session", "-d", "-s", sessionName)
	if opts.Dir != "" {
		args = append(args, "-c", opts.Dir)
	}
	if opts.Cols > 0 && opts.Rows > 0 {
		args = append(args, "-x", strconv.Itoa(int(opts.Cols)), "-y", strconv.Itoa(int(opts.Rows)))
	}
	for _, kv := range opts.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, opts.Command...)

	cmd := exec.CommandContext(ctx, "tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w (%s)",
			sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasSession reports whether a session with exactly the given name exists.
// Returns false if the server is not running.
func (s *Server) HasSession(ctx context.Context, sessionName string) bool {
	args := append(s.baseArgs(), "has-session", "-t", Target(sessionName))
	return exec.CommandContext(ctx, "tmux", args...).Run() == nil
}

// KillSession terminates a session. Returns ErrSessionNotFound when the
// session (or the whole server) is already gone.
func (s *Server) KillSession(ctx context.Context, sessionName string) error {
	_, err := s.Run(ctx, "kill-session", "-t", Target(sessionName))
	if err != nil {
		if isGoneError(err) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// KillServer terminates the entire tmux server. A server that is not
// running is not an error.
func (s *Server) KillServer(ctx context.Context) error {
	_, err := s.Run(ctx, "kill-server")
	if err != nil && !isGoneError(err) {
		return err
	}
	return nil
}

// ListSessions enumerates the sessions on this server. A server that is
// not running has no sessions; that is reported as an empty list.
func (s *Server) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	output, err := s.Run(ctx, "list-sessions", "-F",
		"#{session_name}\t#{session_created}\t#{session_attached}")
	if err != nil {
		if isGoneError(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseSessionList(output)
}

func parseSessionList(output string) ([]SessionInfo, error) {
	var sessions []SessionInfo
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("unexpected list-sessions output: %q (expected 3 tab-separated fields)", line)
		}
		created, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse session_created %q: %w", fields[1], err)
		}
		attached, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("parse session_attached %q: %w", fields[2], err)
		}
		sessions = append(sessions, SessionInfo{
			Name:     fields[0],
			Created:  time.Unix(created, 0),
			Attached: attached,
		})
	}
	return sessions, nil
}

// SetOption sets an option on a session, or globally when sessionName is
// empty.
func (s *Server) SetOption(ctx context.Context, sessionName, key, value string) error {
	var err error
	if sessionName == "" {
		_, err = s.Run(ctx, "set-option", "-g", key, value)
	} else {
		_, err = s.Run(ctx, "set-option", "-t", PaneTarget(sessionName), key, value)
	}
	return err
}

// CapturePane returns the visible content plus scrollback of the named
// session's active pane. maxLines limits the result to the last N lines;
// 0 means no limit.
func (s *Server) CapturePane(ctx context.Context, sessionName string, maxLines int) (string, error) {
	output, err := s.Run(ctx, "capture-pane", "-t", PaneTarget(sessionName), "-p", "-S", "-", "-E", "-")
	if err != nil {
		if isGoneError(err) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	if maxLines <= 0 {
		return output, nil
	}
	return tailString(output, maxLines), nil
}

// Run executes a tmux subcommand on this server and returns its combined
// output. The -S flag is prepended automatically.
func (s *Server) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append(s.baseArgs(), args...)
	cmd := exec.CommandContext(ctx, "tmux", fullArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &CommandError{
			Args:   args,
			Output: strings.TrimSpace(string(output)),
			Err:    err,
		}
	}
	return string(output), nil
}

// AttachCommand returns an unstarted command that attaches a client to the
// named session. The caller wires it to a PTY.
func (s *Server) AttachCommand(sessionName string) *exec.Cmd {
	args := append(s.baseArgs(), "attach-session", "-t", Target(sessionName))
	return exec.Command("tmux", args...)
}

// CommandError is returned when a tmux invocation exits unsuccessfully.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("tmux %s: %v (%s)", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// isGoneError reports whether err is tmux telling us the target session or
// the server itself does not exist. These are normal conditions for
// lookups and cleanup.
func isGoneError(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	out := cmdErr.Output
	return strings.Contains(out, "can't find session") ||
		strings.Contains(out, "can't find pane") ||
		strings.Contains(out, "no such session") ||
		strings.Contains(out, "no server running") ||
		strings.Contains(out, "session not found") ||
		strings.Contains(out, "server exited unexpectedly") ||
		(strings.Contains(out, "error connecting to") && strings.Contains(out, "No such file or directory"))
}

// SanitizeSessionName maps a free-form label onto a valid tmux session
// name. tmux rejects '.' and ':' in names, and whitespace makes targets
// awkward to type, so all three become '-'.
func SanitizeSessionName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == ':':
			return '-'
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return '-'
		case r < 32:
			return -1
		}
		return r
	}, name)
}

// tailString returns the last n lines of s with tail -n semantics: a
// trailing newline terminates the last line rather than starting a new one.
func tailString(s string, n int) string {
	if len(s) == 0 {
		return s
	}
	searchFrom := len(s) - 1
	if s[searchFrom] == '\n' {
		searchFrom--
	}
	count := 0
	for i := searchFrom; i >= 0; i-- {
		if s[i] == '\n' {
			count++
			if count == n {
				return s[i+1:]
			}
		}
	}
	return s
}
