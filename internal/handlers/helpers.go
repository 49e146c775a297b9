package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gluk-w/devdash/internal/middleware"
	"github.com/gluk-w/devdash/internal/terminal"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, middleware.ErrorBody{Detail: detail})
}

func errorBody(detail string, kind terminal.Kind, target string) middleware.ErrorBody {
	return middleware.ErrorBody{Detail: detail, Kind: kind.String(), Target: target}
}

// statusFor maps a terminal error kind to an HTTP status code.
func statusFor(kind terminal.Kind) int {
	switch kind {
	case terminal.KindValidation:
		return http.StatusBadRequest
	case terminal.KindNotFound:
		return http.StatusNotFound
	case terminal.KindCapability:
		return http.StatusConflict
	case terminal.KindCrash:
		return http.StatusGone
	case terminal.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeTerminalError writes err as {"detail","kind","target"} with the
// status matching its kind. Errors outside the terminal taxonomy are
// logged and reported as 500.
func writeTerminalError(w http.ResponseWriter, err error) {
	kind := terminal.KindOf(err)
	body := middleware.ErrorBody{Detail: err.Error(), Target: terminal.TargetOf(err)}
	if kind == terminal.KindUnknown {
		log.Printf("[api] internal error: %v", err)
	} else {
		body.Kind = kind.String()
	}
	writeJSON(w, statusFor(kind), body)
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// queryInt returns the positive integer query parameter key, or def.
func queryInt(r *http.Request, key string, def int) int {
	if q := r.URL.Query().Get(key); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			return n
		}
	}
	return def
}
