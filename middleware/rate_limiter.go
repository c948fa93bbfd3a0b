// middleware/rate_limiter.go
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/HSouheill/barrim_mlm/models"
)

type endpointLimit struct {
	limit rate.Limit
	burst int
}

// RateLimiter throttles requests per client IP, with tighter limits on the
// endpoints that write to the tree or the ledger.
type RateLimiter struct {
	ips            map[string]*rate.Limiter
	blockedIPs     map[string]time.Time
	mu             *sync.Mutex
	defaultLimit   rate.Limit
	defaultBurst   int
	blockDuration  time.Duration
	endpointLimits map[string]endpointLimit
}

// NewRateLimiter allows rps requests per second per IP with the given burst.
// Non-positive values fall back to 10 rps and a burst of 20.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	limiter := &RateLimiter{
		ips:            make(map[string]*rate.Limiter),
		blockedIPs:     make(map[string]time.Time),
		mu:             &sync.Mutex{},
		defaultLimit:   rate.Limit(rps),
		defaultBurst:   burst,
		blockDuration:  time.Minute,
		endpointLimits: make(map[string]endpointLimit),
	}

	// Placement and distribution each open a storage transaction.
	limiter.SetEndpointLimit("/api/mlm/placements", rate.Every(200*time.Millisecond), 10)
	limiter.SetEndpointLimit("/api/mlm/register", rate.Every(500*time.Millisecond), 5)
	limiter.SetEndpointLimit("/api/mlm/commissions/distribute", rate.Every(100*time.Millisecond), 20)

	return limiter
}

// SetEndpointLimit overrides the limit for a route path as registered in Echo.
func (r *RateLimiter) SetEndpointLimit(path string, limit rate.Limit, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpointLimits[path] = endpointLimit{limit: limit, burst: burst}
}

// Cleanup drops expired blocks every interval until ctx is done.
func (r *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for ip, blockUntil := range r.blockedIPs {
				if now.After(blockUntil) {
					delete(r.blockedIPs, ip)
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			path := c.Path()
			if path == "/health" || path == "/metrics" {
				return next(c)
			}

			r.mu.Lock()
			if blockUntil, blocked := r.blockedIPs[ip]; blocked {
				if time.Now().Before(blockUntil) {
					r.mu.Unlock()
					return tooManyRequests(c, blockUntil)
				}
				// Block has expired
				delete(r.blockedIPs, ip)
			}
			limit, burst := r.defaultLimit, r.defaultBurst
			if el, ok := r.endpointLimits[path]; ok {
				limit, burst = el.limit, el.burst
			}
			key := ip + " " + path
			limiter, ok := r.ips[key]
			if !ok {
				limiter = rate.NewLimiter(limit, burst)
				r.ips[key] = limiter
			}
			r.mu.Unlock()

			if !limiter.Allow() {
				blockUntil := time.Now().Add(r.blockDuration)
				r.mu.Lock()
				r.blockedIPs[ip] = blockUntil
				r.mu.Unlock()
				return tooManyRequests(c, blockUntil)
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, retryAfter time.Time) error {
	return c.JSON(http.StatusTooManyRequests, models.Response{
		Status:  http.StatusTooManyRequests,
		Message: "Too many requests",
		Data:    map[string]string{"retryAfter": retryAfter.Format(time.RFC3339)},
	})
}
