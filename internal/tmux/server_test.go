package tmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseSessionList(t *testing.T) {
	output := "api\t1700000000\t1\nworker\t1700000060\t0\n"
	sessions, err := parseSessionList(output)
	if err != nil {
		t.Fatalf("parseSessionList: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Name != "api" || sessions[0].Attached != 1 {
		t.Errorf("unexpected first session: %+v", sessions[0])
	}
	if !sessions[1].Created.Equal(time.Unix(1700000060, 0)) {
		t.Errorf("unexpected created time: %v", sessions[1].Created)
	}
}

func TestParseSessionList_Malformed(t *testing.T) {
	if _, err := parseSessionList("only-a-name\n"); err == nil {
		t.Fatal("expected error for malformed line")
	}
	if _, err := parseSessionList("x\tnot-a-number\t0\n"); err == nil {
		t.Fatal("expected error for bad timestamp")
	}
}

func TestSanitizeSessionName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"A", "A"},
		{"my.project", "my-project"},
		{"host:8080", "host-8080"},
		{"  build logs ", "build-logs"},
		{"tab\there", "tab-here"},
	}
	for _, tt := range tests {
		if got := SanitizeSessionName(tt.in); got != tt.want {
			t.Errorf("SanitizeSessionName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTailString(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"", 3, ""},
		{"a\nb\nc\n", 2, "b\nc\n"},
		{"a\nb\nc", 2, "b\nc"},
		{"a\nb\n", 5, "a\nb\n"},
	}
	for _, tt := range tests {
		if got := tailString(tt.in, tt.n); got != tt.want {
			t.Errorf("tailString(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestTarget(t *testing.T) {
	if got := Target("api"); got != "=api" {
		t.Errorf("Target = %q, want =api", got)
	}
	if got := PaneTarget("api"); got != "=api:" {
		t.Errorf("PaneTarget = %q, want =api:", got)
	}
}

func TestIsGoneError(t *testing.T) {
	gone := &CommandError{Args: []string{"has-session"}, Output: "can't find session: x", Err: errors.New("exit status 1")}
	if !isGoneError(gone) {
		t.Error("expected can't-find-session to be treated as gone")
	}
	for _, out := range []string{"can't find pane: =x", "no such session: =x"} {
		if !isGoneError(&CommandError{Args: []string{"capture-pane"}, Output: out, Err: errors.New("exit status 1")}) {
			t.Errorf("expected %q to be treated as gone", out)
		}
	}
	other := &CommandError{Args: []string{"new-session"}, Output: "duplicate session: x", Err: errors.New("exit status 1")}
	if isGoneError(other) {
		t.Error("duplicate session must not be treated as gone")
	}
	if isGoneError(errors.New("plain")) {
		t.Error("non-command errors must not be treated as gone")
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	server := NewTestServer(t)
	ctx := context.Background()

	err := server.NewSession(ctx, "work", NewSessionOptions{
		Dir:     "/tmp",
		Cols:    100,
		Rows:    30,
		Env:     []string{"DEVDASH_TEST=1"},
		Command: []string{"sleep", "infinity"},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !server.HasSession(ctx, "work") {
		t.Fatal("HasSession returned false for a session that was just created")
	}
	// Exact-match targeting: a prefix must not resolve.
	if server.HasSession(ctx, "wor") {
		t.Fatal("HasSession matched a prefix of an existing session")
	}

	sessions, err := server.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	found := false
	for _, s := range sessions {
		if s.Name == "work" {
			found = true
			if s.Created.IsZero() {
				t.Error("expected non-zero created time")
			}
		}
	}
	if !found {
		t.Fatalf("session missing from list: %+v", sessions)
	}

	if err := server.KillSession(ctx, "work"); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	if server.HasSession(ctx, "work") {
		t.Fatal("session still exists after KillSession")
	}
	if err := server.KillSession(ctx, "work"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second kill, got %v", err)
	}
}

func TestServer_DuplicateSessionFails(t *testing.T) {
	server := NewTestServer(t)
	ctx := context.Background()

	opts := NewSessionOptions{Command: []string{"sleep", "infinity"}}
	if err := server.NewSession(ctx, "dup", opts); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := server.NewSession(ctx, "dup", opts); err == nil {
		t.Fatal("expected error creating a duplicate session")
	}
}

func TestServer_CapturePane(t *testing.T) {
	server := NewTestServer(t)
	ctx := context.Background()

	if err := server.NewSession(ctx, "echo", NewSessionOptions{
		Command: []string{"sh", "-c", "echo captured-output; sleep infinity"},
	}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		out, err := server.CapturePane(ctx, "echo", 0)
		if err != nil {
			t.Fatalf("CapturePane: %v", err)
		}
		if strings.Contains(out, "captured-output") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pane never showed output, last capture: %q", out)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestServer_ListSessionsWithoutServer(t *testing.T) {
	if !Available() {
		t.Skip("tmux not installed")
	}
	server := NewServer("/tmp/devdash-no-such-server.sock", "/dev/null")
	sessions, err := server.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions on stopped server: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %+v", sessions)
	}
}

func TestServer_SetOptionOnSession(t *testing.T) {
	server := NewTestServer(t)
	ctx := context.Background()

	if err := server.NewSession(ctx, "opts", NewSessionOptions{Command: []string{"sleep", "infinity"}}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := server.SetOption(ctx, "opts", "status", "off"); err != nil {
		t.Fatalf("SetOption: %v", err)
	}
	out, err := server.Run(ctx, "show-options", "-v", "-t", PaneTarget("opts"), "status")
	if err != nil {
		t.Fatalf("show-options: %v", err)
	}
	if got := strings.TrimSpace(out); got != "off" {
		t.Errorf("status option = %q, want off", got)
	}
}

func TestServer_CapturePaneMissingSession(t *testing.T) {
	server := NewTestServer(t)
	ctx := context.Background()

	if err := server.NewSession(ctx, "present", NewSessionOptions{Command: []string{"sleep", "infinity"}}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := server.CapturePane(ctx, "absent", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := server.SetOption(ctx, "absent", "status", "off"); err == nil {
		t.Fatal("expected SetOption on a missing session to fail")
	}
}
