package main

import (
	"bytes"
	"testing"
)

func TestBridgeURL(t *testing.T) {
	tests := []struct {
		server, id, want string
		wantErr          bool
	}{
		{"http://localhost:8000", "abc", "ws://localhost:8000/api/v1/terminals/abc/ws", false},
		{"https://dash.example.com/", "abc", "wss://dash.example.com/api/v1/terminals/abc/ws", false},
		{"https://dash.example.com/devdash", "a b", "wss://dash.example.com/devdash/api/v1/terminals/a%20b/ws", false},
		{"ftp://host", "abc", "", true},
		{"http://localhost:8000", "", "", true},
	}
	for _, tt := range tests {
		got, err := bridgeURL(tt.server, tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("bridgeURL(%q, %q) error = %v, wantErr %v", tt.server, tt.id, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("bridgeURL(%q, %q) = %q, want %q", tt.server, tt.id, got, tt.want)
		}
	}
}

func TestExitScanner(t *testing.T) {
	var s exitScanner

	out, exit := s.scan([]byte("ls\r"))
	if exit || !bytes.Equal(out, []byte("ls\r")) {
		t.Fatalf("plain input: %q, %v", out, exit)
	}

	// A prefix split across reads still detaches.
	out, exit = s.scan([]byte{'a', exitPrefix})
	if exit || !bytes.Equal(out, []byte("a")) {
		t.Fatalf("prefix chunk: %q, %v", out, exit)
	}
	out, exit = s.scan([]byte{exitKey, 'z'})
	if !exit || len(out) != 0 {
		t.Fatalf("exit chunk: %q, %v", out, exit)
	}

	// A prefix followed by anything else is forwarded.
	s = exitScanner{}
	out, exit = s.scan([]byte{exitPrefix, 'x'})
	if exit || !bytes.Equal(out, []byte{exitPrefix, 'x'}) {
		t.Fatalf("non-exit sequence: %q, %v", out, exit)
	}
}
