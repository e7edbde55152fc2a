package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/ratelimit"
)

// RateLimit counts every request against the limiter of its policy group,
// keyed by client address. Over the limit it answers 429 with Retry-After
// and records RATE_LIMIT_EXCEEDED. Limiter errors fail open.
func RateLimit(g *ratelimit.Groups, events *audit.Log) Middleware {
	return rateLimit(g, events, time.Now)
}

func rateLimit(g *ratelimit.Groups, events *audit.Log, now func() time.Time) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, applied, err := g.Allow(r.Context(), r.URL.Path, clientIP(r))
			if err != nil {
				slog.WarnContext(r.Context(), "rate limiter unavailable, allowing request", "path", r.URL.Path, "err", err)
			}
			if !applied {
				next.ServeHTTP(w, r)
				return
			}

			t := now()
			h := w.Header()
			reset := int(d.ResetAt.Sub(t).Round(time.Second) / time.Second)
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(max(0, reset)))

			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter(t)/time.Second)))
				record(r, events, audit.RateLimitExceeded, details(r))
				WriteError(w, http.StatusTooManyRequests, CodeRateLimited,
					"too many requests from this IP, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
