package terminal

import (
	"bytes"
	"sync"
)

// DefaultPreviewLines is the default ring buffer capacity in entries.
// It is sized for a dashboard preview, not for scrollback: full history
// belongs to tmux.
const DefaultPreviewLines = 200

// maxPartialEntry bounds the unterminated tail of the stream. Programs
// that redraw a single line forever (progress bars, spinners) never emit
// '\n', so the pending entry is cut once it reaches this size.
const maxPartialEntry = 8 * 1024

// RingBuffer is a fixed-capacity circular log of output entries for one
// handle. Each entry is one line of raw output with the terminating '\n'
// removed; carriage returns and escape sequences are kept as produced.
// The unterminated tail of the stream is held as a pending entry and is
// visible to readers.
//
// There is exactly one writer (the handle's output pump). Readers get a
// copy and never observe or disturb the writer's state.
type RingBuffer struct {
	mu      sync.Mutex
	entries []string
	head    int // next slot to write
	size    int
	partial []byte
}

// NewRingBuffer creates a ring buffer holding at most capacity entries.
// A capacity <= 0 uses DefaultPreviewLines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultPreviewLines
	}
	return &RingBuffer{
		entries: make([]string, capacity),
	}
}

// Write appends output bytes, splitting them into entries on '\n'. When
// the buffer is full the oldest entry is dropped.
func (r *RingBuffer) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			r.partial = append(r.partial, p...)
			if len(r.partial) >= maxPartialEntry {
				r.pushLocked(string(r.partial))
				r.partial = r.partial[:0]
			}
			return
		}
		r.partial = append(r.partial, p[:i]...)
		r.pushLocked(string(r.partial))
		r.partial = r.partial[:0]
		p = p[i+1:]
	}
}

func (r *RingBuffer) pushLocked(entry string) {
	r.entries[r.head] = entry
	r.head = (r.head + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
}

// Lines returns up to max of the most recent entries, oldest first. The
// pending unterminated entry, if any, counts as the newest. Lines never
// returns more than max entries and returns nil when max <= 0.
func (r *RingBuffer) Lines(max int) []string {
	if max <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.size
	hasPartial := len(r.partial) > 0
	if hasPartial {
		total++
	}
	n := total
	if n > max {
		n = max
	}
	result := make([]string, 0, n)

	complete := n
	if hasPartial {
		complete--
	}
	// Oldest of the entries we return sits `complete` slots behind head.
	start := (r.head - complete + len(r.entries)) % len(r.entries)
	for i := 0; i < complete; i++ {
		result = append(result, r.entries[(start+i)%len(r.entries)])
	}
	if hasPartial && n > 0 {
		result = append(result, string(r.partial))
	}
	return result
}

// count returns the number of entries currently held, including a pending
// unterminated entry.
func (r *RingBuffer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.partial) > 0 {
		return r.size + 1
	}
	return r.size
}

// capacity returns the maximum number of complete entries retained.
func (r *RingBuffer) capacity() int {
	return len(r.entries)
}
