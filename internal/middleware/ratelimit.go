package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shubham07069/chatgod/internal/auth"
)

// idleLimiter is how long a user's limiter survives without use.
const idleLimiter = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out a token bucket per user.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	users    map[int]*userLimiter
	now      func() time.Time
	lastScan time.Time
}

// NewRateLimiter allows perMinute requests per user with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limit: rate.Limit(float64(perMinute) / 60),
		burst: burst,
		users: make(map[int]*userLimiter),
		now:   time.Now,
	}
}

func (rl *RateLimiter) Allow(userID int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastScan) > idleLimiter {
		for id, u := range rl.users {
			if now.Sub(u.lastSeen) > idleLimiter {
				delete(rl.users, id)
			}
		}
		rl.lastScan = now
	}

	u, ok := rl.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.users[userID] = u
	}
	u.lastSeen = now
	return u.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token refills.
func (rl *RateLimiter) retryAfter() int {
	if rl.limit <= 0 {
		return 60
	}
	return int(math.Ceil(1/float64(rl.limit) - 1e-9))
}

// RateLimit rejects requests over the caller's budget with 429. It must run
// after AuthMiddleware.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !rl.Allow(ac.UserID) {
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
