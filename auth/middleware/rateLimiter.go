package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Coarse per-IP request limiter guarding the whole router. The fine-grained
// per-operation budgets live in the ratelimit package; this one only sheds
// abusive clients before they reach a handler.

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, exists := l.clients[ip]
	if !exists {
		limiter := rate.NewLimiter(l.rate, l.burst)
		l.clients[ip] = &clientLimiter{limiter, time.Now()}
		return limiter
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (l *ipLimiter) cleanupLoop() {
	for {
		time.Sleep(time.Minute)
		l.mu.Lock()
		for ip, cl := range l.clients {
			if time.Since(cl.lastSeen) > 3*time.Minute {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimitMiddleware allows 5 requests per second per IP with a burst of 10.
func RateLimitMiddleware() gin.HandlerFunc {
	l := &ipLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate.Every(200 * time.Millisecond),
		burst:   10,
	}
	go l.cleanupLoop()

	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}
		c.Next()
	}
}
