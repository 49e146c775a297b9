package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// drainTimeout bounds how long the pump may keep reading after the
// process exited. A background job that inherited the terminal would
// otherwise hold the PTY open forever.
const drainTimeout = time.Second

// strippedEnv lists variables inherited from the operator's own terminal
// that would confuse programs running under devdash.
var strippedEnv = map[string]bool{
	"TMUX":                 true,
	"TMUX_PANE":            true,
	"STY":                  true,
	"TERM_PROGRAM":         true,
	"TERM_PROGRAM_VERSION": true,
	"TERM_SESSION_ID":      true,
	"ITERM_SESSION_ID":     true,
	"ITERM_PROFILE":        true,
	"WINDOWID":             true,
	"VTE_VERSION":          true,
}

// process is an OS process attached to the master side of a PTY. The
// child runs in its own session, so its pid is also its process group id.
type process struct {
	cmd *exec.Cmd
	pty *os.File

	exited   chan struct{}
	waitErr  error
	ptyClose sync.Once
}

func startProcess(cmd *exec.Cmd, cols, rows uint16) (*process, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}
	p := &process{cmd: cmd, pty: f, exited: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// probePTY opens and immediately closes a PTY pair.
func probePTY() error {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return err
	}
	tty.Close()
	ptmx.Close()
	return nil
}

// Pid returns the OS process id.
func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) resize(cols, rows uint16) error {
	return pty.Setsize(p.pty, &pty.Winsize{Cols: cols, Rows: rows})
}

func (p *process) closePTY() {
	p.ptyClose.Do(func() { p.pty.Close() })
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// signalGroup delivers sig to every process in the child's group.
func (p *process) signalGroup(sig unix.Signal) {
	pid := p.Pid()
	if pid <= 0 {
		return
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		// Fall back to the leader alone; the group may already be gone.
		unix.Kill(pid, sig)
	}
}

// terminate asks the process group to exit with SIGHUP and SIGTERM, then
// sends SIGKILL if it is still running after grace. It returns once the
// process has been reaped.
func (p *process) terminate(grace time.Duration) {
	if !p.alive() {
		return
	}
	p.signalGroup(unix.SIGHUP)
	p.signalGroup(unix.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
		p.signalGroup(unix.SIGKILL)
		<-p.exited
	}
}

// exitStatus describes how the process ended. Only valid after exited is
// closed.
func (p *process) exitStatus() (int, string) {
	if p.waitErr == nil {
		return 0, "exited with code 0"
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sig := unix.Signal(ws.Signal())
			return 128 + int(sig), "killed by signal " + unix.SignalName(sig)
		}
		return exitErr.ExitCode(), fmt.Sprintf("exited with code %d", exitErr.ExitCode())
	}
	return -1, p.waitErr.Error()
}

// buildEnv returns the environment for a child process: the manager's own
// environment minus the variables in strippedEnv, with TERM forced to
// xterm-256color and overlay applied last.
func buildEnv(base []string, overlay map[string]string) []string {
	env := make([]string, 0, len(base)+len(overlay)+1)
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if strippedEnv[key] || key == "TERM" {
			continue
		}
		if _, ok := overlay[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	if _, ok := overlay["TERM"]; !ok {
		env = append(env, "TERM=xterm-256color")
	}
	return append(env, envPairs(overlay)...)
}

// envPairs renders a map as sorted KEY=VALUE pairs.
func envPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}

// commandLine returns argv for a request, falling back to shell.
func commandLine(command string, args []string, shell string) []string {
	if command == "" {
		return []string{shell}
	}
	return append([]string{command}, args...)
}

// defaultShell picks the login shell from the environment.
func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
