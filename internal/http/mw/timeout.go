package mw

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// panicWithStack captures a panic value along with its stack trace.
type panicWithStack struct {
	value interface{}
	stack []byte
}

// TimeoutConfig defines timeout behavior for different requests.
type TimeoutConfig struct {
	// Default timeout for most endpoints
	Default time.Duration
	// Extended timeout for long-polls and text generation
	Extended time.Duration
	// Path substrings that get the extended timeout (e.g. "/ai-text")
	ExtendedPatterns []string
}

// extended reports whether r gets the extended timeout: a matching path, or
// a status long-poll with a positive wait.
func (cfg TimeoutConfig) extended(r *http.Request) bool {
	if w := r.URL.Query().Get("wait"); w != "" && w != "0" {
		return true
	}
	for _, pattern := range cfg.ExtendedPatterns {
		if strings.Contains(r.URL.Path, pattern) {
			return true
		}
	}
	return false
}

// Timeout returns a middleware that bounds request handling. A request that
// runs out of time gets 504; a panic in the handler is re-raised on the
// serving goroutine so the recoverer sees it.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := cfg.Default
			if cfg.extended(r) {
				timeout = cfg.Extended
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			panicChan := make(chan *panicWithStack, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- &panicWithStack{value: p, stack: debug.Stack()}
					}
				}()
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case p := <-panicChan:
				panic(fmt.Sprintf("%v\n\nOriginal stack trace:\n%s", p.value, p.stack))
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					w.WriteHeader(http.StatusGatewayTimeout)
				}
			}
		})
	}
}
