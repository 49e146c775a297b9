package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/term"
)

const (
	// exitPrefix (Ctrl+]) followed by exitKey detaches, as in telnet.
	exitPrefix = 0x1D
	exitKey    = 'q'
)

type frame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// bridgeURL turns a server base URL and terminal id into the bridge's
// WebSocket URL.
func bridgeURL(server, id string) (string, error) {
	if id == "" {
		return "", errors.New("terminal id is required")
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/terminals/" + id + "/ws"
	return u.String(), nil
}

// closeMessage describes why the server ended the bridge.
func closeMessage(err error) string {
	switch websocket.CloseStatus(err) {
	case 4409:
		return "another client attached to this terminal"
	case 4410:
		return "the terminal process exited"
	case 4408:
		return "output could not be delivered fast enough"
	case websocket.StatusNormalClosure:
		return "the terminal was closed"
	case -1:
		return fmt.Sprintf("connection lost: %v", err)
	default:
		return fmt.Sprintf("connection closed: %v", err)
	}
}

// exitScanner detects the detach sequence in a stream of input chunks.
type exitScanner struct {
	armed bool
}

// scan returns the bytes of p to forward and whether the detach sequence
// completed. A prefix byte not followed by exitKey is forwarded as is.
func (s *exitScanner) scan(p []byte) ([]byte, bool) {
	out := make([]byte, 0, len(p)+1)
	for _, b := range p {
		if s.armed {
			s.armed = false
			if b == exitKey {
				return out, true
			}
			out = append(out, exitPrefix)
		}
		if b == exitPrefix {
			s.armed = true
			continue
		}
		out = append(out, b)
	}
	return out, false
}

type attachSession struct {
	endpoint string
	token    string
	stdin    *os.File
	stdout   io.Writer
}

func (s *attachSession) run(ctx context.Context) error {
	var opts websocket.DialOptions
	if s.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + s.token}}
	}
	conn, resp, err := websocket.Dial(ctx, s.endpoint, &opts)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("attach refused: %s", resp.Status)
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(-1)

	fd := int(s.stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("set raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.sendSize(ctx, conn, fd)
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-winch:
				s.sendSize(ctx, conn, fd)
			}
		}
	}()

	detached := make(chan struct{})
	go func() {
		if s.pumpInput(ctx, conn) {
			close(detached)
		}
	}()

	readErr := make(chan error, 1)
	go func() { readErr <- s.pumpOutput(ctx, conn) }()

	select {
	case <-detached:
		conn.Close(websocket.StatusNormalClosure, "")
		fmt.Fprint(s.stdout, "\r\n[detached]\r\n")
		return nil
	case err := <-readErr:
		fmt.Fprintf(s.stdout, "\r\n[%s]\r\n", closeMessage(err))
		return nil
	}
}

func (s *attachSession) sendSize(ctx context.Context, conn *websocket.Conn, fd int) {
	cols, rows, err := term.GetSize(fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return
	}
	wsjson.Write(ctx, conn, frame{Type: "resize", Cols: cols, Rows: rows})
}

// pumpInput forwards stdin until it ends or the detach sequence is typed,
// in which case it returns true.
func (s *attachSession) pumpInput(ctx context.Context, conn *websocket.Conn) bool {
	var scanner exitScanner
	buf := make([]byte, 4096)
	for {
		n, err := s.stdin.Read(buf)
		if n > 0 {
			data, exit := scanner.scan(buf[:n])
			if len(data) > 0 {
				if werr := wsjson.Write(ctx, conn, frame{Type: "input", Data: string(data)}); werr != nil {
					return false
				}
			}
			if exit {
				return true
			}
		}
		if err != nil {
			return false
		}
	}
}

// pumpOutput writes output frames to stdout until the connection ends.
func (s *attachSession) pumpOutput(ctx context.Context, conn *websocket.Conn) error {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}
		if f.Type == "output" {
			io.WriteString(s.stdout, f.Data)
		}
	}
}
