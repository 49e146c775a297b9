package terminal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// castHeader is the first line of an asciicast v2 file.
type castHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Recorder appends a handle's terminal I/O to an asciicast v2 file so a
// session can be replayed with asciinema. Each event is written as it
// happens; nothing is buffered in memory.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	start  time.Time
	closed bool
}

// NewRecorder creates <dir>/<id>.cast and writes the header.
func NewRecorder(dir, id, title string, cols, rows uint16) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	path := filepath.Join(dir, id+".cast")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	start := time.Now()
	header, err := json.Marshal(castHeader{
		Version:   2,
		Width:     int(cols),
		Height:    int(rows),
		Timestamp: start.Unix(),
		Title:     title,
		Env:       map[string]string{"TERM": "xterm-256color"},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Write(append(header, '\n')); err != nil {
		f.Close()
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	return &Recorder{f: f, start: start}, nil
}

// Path returns the file the recording is written to.
func (r *Recorder) Path() string {
	return r.f.Name()
}

// RecordOutput appends an output event.
func (r *Recorder) RecordOutput(data []byte) {
	r.record("o", data)
}

// RecordInput appends an input event.
func (r *Recorder) RecordInput(data []byte) {
	r.record("i", data)
}

// RecordResize appends a resize event.
func (r *Recorder) RecordResize(cols, rows uint16) {
	r.record("r", []byte(fmt.Sprintf("%dx%d", cols, rows)))
}

func (r *Recorder) record(kind string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	line, err := json.Marshal([]any{time.Since(r.start).Seconds(), kind, string(data)})
	if err != nil {
		return
	}
	r.f.Write(append(line, '\n'))
}

// Close flushes and closes the recording file. Later events are ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}
