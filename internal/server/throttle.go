package server

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// evalThrottle admits one evaluation per key within each window. Limiters
// idle for longer than the window are dropped.
type evalThrottle struct {
	mu       sync.Mutex
	window   time.Duration
	now      func() time.Time
	limiters *ttlcache.Cache[string, *rate.Limiter]
}

func newEvalThrottle(window time.Duration) *evalThrottle {
	idle := max(window, time.Minute)
	return &evalThrottle{
		window:   window,
		now:      time.Now,
		limiters: ttlcache.New(ttlcache.WithTTL[string, *rate.Limiter](idle)),
	}
}

func (t *evalThrottle) Allow(key string) bool {
	if t.window <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiters.DeleteExpired()
	var lim *rate.Limiter
	if item := t.limiters.Get(key); item != nil {
		lim = item.Value()
	} else {
		lim = rate.NewLimiter(rate.Every(t.window), 1)
		t.limiters.Set(key, lim, ttlcache.DefaultTTL)
	}
	return lim.AllowN(t.now(), 1)
}

// Len counts tracked keys.
func (t *evalThrottle) Len() int { return t.limiters.Len() }
