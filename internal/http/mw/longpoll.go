package mw

import (
	"net/http"
	"strconv"
	"time"
)

// ExtendWriteDeadlineForWait extends the HTTP write deadline of status
// long-polls (a positive ?wait= in seconds) so they may block longer than the
// server's WriteTimeout. The wait is capped at maxWait and a buffer is added
// for writing the response.
func ExtendWriteDeadlineForWait(maxWait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secs, err := strconv.Atoi(r.URL.Query().Get("wait")); err == nil && secs > 0 {
				wait := min(time.Duration(secs)*time.Second, maxWait)
				// Not every ResponseWriter supports deadlines; the request may
				// then be cut short by WriteTimeout.
				_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(wait + 30*time.Second))
			}
			next.ServeHTTP(w, r)
		})
	}
}
