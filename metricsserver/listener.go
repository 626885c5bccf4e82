package metricsserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// rateLimited wraps a handler with a per-process token bucket so a runaway
// polling loop (or an accidental public bind) can't turn the debug endpoint
// into a self-inflicted denial of service.
func rateLimited(next http.Handler, rps float64, burst int) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 50*time.Millisecond)
		defer cancel()
		if err := limiter.Wait(ctx); err != nil {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
