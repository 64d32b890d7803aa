package mockserver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginRateLimiter throttles login attempts per login name.
type LoginRateLimiter interface {
	Allow(key string) bool
}

const redisAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisLoginRateLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
	prefix string
}

func NewRedisLoginRateLimiter(client *redis.Client, window time.Duration, max int) LoginRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisLoginRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "login:rl:",
	}
}

func (l *redisLoginRateLimiter) Allow(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	count, err := l.client.Eval(ctx, redisAllowScript, []string{l.prefix + normalized}, seconds).Int()
	if err != nil {
		// Rate limiting is best effort on the mock backend.
		return true
	}
	return count <= l.max
}

type memoryLoginRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	counts map[string]windowCount
}

type windowCount struct {
	count int
	reset time.Time
}

func NewMemoryLoginRateLimiter(window time.Duration, max int) LoginRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &memoryLoginRateLimiter{
		window: window,
		max:    max,
		counts: make(map[string]windowCount),
	}
}

func (l *memoryLoginRateLimiter) Allow(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	wc, ok := l.counts[normalized]
	if !ok || now.After(wc.reset) {
		l.counts[normalized] = windowCount{count: 1, reset: now.Add(l.window)}
		return true
	}
	wc.count++
	l.counts[normalized] = wc
	return wc.count <= l.max
}
