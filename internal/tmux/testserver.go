package tmux

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// NewTestServer creates an isolated tmux server for tests and skips the
// test when tmux is not installed. The socket lives under a short /tmp
// directory to stay within the Unix socket path limit, the config file is
// /dev/null, and a "_guard" session keeps the server alive until cleanup
// kills it.
func NewTestServer(t *testing.T) *Server {
	t.Helper()
	if !Available() {
		t.Skip("tmux not installed")
	}

	dir, err := os.MkdirTemp("/tmp", "ddtmux")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	server := NewServer(filepath.Join(dir, "tmux.sock"), "/dev/null")

	if err := server.NewSession(context.Background(), "_guard", NewSessionOptions{
		Command: []string{"sleep", "infinity"},
	}); err != nil {
		os.RemoveAll(dir)
		t.Fatalf("start tmux test server: %v", err)
	}

	t.Cleanup(func() {
		server.KillServer(context.Background())
		os.RemoveAll(dir)
	})
	return server
}
