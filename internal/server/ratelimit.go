package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxRateLimitedClients bounds the number of client buckets kept. The least
// recently seen client is forgotten first.
const maxRateLimitedClients = 10000

// A rateLimiter holds one token bucket per client IP.
type rateLimiter struct {
	mutex    sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

func newRateLimiter(limit float64, burst int) *rateLimiter {
	limiters, err := lru.New[string, *rate.Limiter](maxRateLimitedClients)
	if err != nil {
		panic(err)
	}
	return &rateLimiter{
		limit:    rate.Limit(limit),
		burst:    max(burst, 1),
		limiters: limiters,
	}
}

func (l *rateLimiter) allow(client string) bool {
	l.mutex.Lock()
	limiter, ok := l.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(client, limiter)
	}
	l.mutex.Unlock()
	return limiter.Allow()
}

func (l *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
