package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/devdash/internal/database"
	"github.com/gluk-w/devdash/internal/termaudit"
)

// ListTerminalEvents handles GET /api/v1/terminals/events.
// Query parameters:
//   - type (optional): filter by event type, e.g. terminal_crashed
//   - terminal (optional): filter by handle id
//   - session (optional): filter by tmux session name
//   - since, until (optional): RFC 3339 time bounds
//   - limit (optional): entries per page (default 50, max 1000)
//   - offset (optional): pagination offset
func ListTerminalEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := termaudit.QueryOptions{
		EventType:   q.Get("type"),
		HandleID:    q.Get("terminal"),
		SessionName: q.Get("session"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = limit
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		opts.Offset = offset
	}
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(bound.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+bound.key)
			return
		}
		*bound.dst = &t
	}

	if TermAudit == nil {
		writeJSON(w, http.StatusOK, termaudit.QueryResult{
			Entries: []database.TerminalEvent{},
			Limit:   opts.Limit,
			Offset:  opts.Offset,
		})
		return
	}

	result, err := TermAudit.Query(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query terminal events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
