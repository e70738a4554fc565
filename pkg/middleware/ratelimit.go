package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterTTL is how long an idle client keeps its limiter before cleanup
const limiterTTL = 10 * time.Minute

// RateLimiter manages per-client rate limiting.
// The registry mostly serves localhost, but nothing stops a misbehaving
// restart loop from hammering /ports/request, and every miss there costs
// an OS probe.
type RateLimiter struct {
	rpm   int
	burst int

	mu          sync.Mutex
	clients     map[string]*clientLimiter
	lastCleanup time.Time
}

// clientLimiter holds the rate limiter for a single client
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing rpm requests per minute
// per client IP, with a burst allowance of rpm/60*burstMultiplier.
func NewRateLimiter(rpm, burstMultiplier int) *RateLimiter {
	burst := int(math.Ceil(float64(rpm) / 60.0 * float64(burstMultiplier)))
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rpm:         rpm,
		burst:       burst,
		clients:     make(map[string]*clientLimiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether the client may proceed
func (r *RateLimiter) Allow(clientIP string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastCleanup) > limiterTTL {
		for ip, cl := range r.clients {
			if now.Sub(cl.lastSeen) > limiterTTL {
				delete(r.clients, ip)
			}
		}
		r.lastCleanup = now
	}

	cl, ok := r.clients[clientIP]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst),
		}
		r.clients[clientIP] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

// RateLimit returns a gin middleware enforcing the limiter
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
