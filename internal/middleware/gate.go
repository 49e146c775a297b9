package middleware

import "net/http"

// RequireTerminalBackend answers every request with 503 and the fixed
// unavailability error when check reports the terminal backend missing.
// check is expected to return a value computed once at startup.
func RequireTerminalBackend(check func() error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Detail: err.Error(), Kind: "unavailable"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
