package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// counter は1つのウィンドウ内の消費回数。
type counter struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter はプロセス内で完結する固定ウィンドウリミッター。
// 複数インスタンス間では共有されない。
type MemoryLimiter struct {
	mu     sync.Mutex
	cache  *ttlcache.Cache[string, *counter]
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter はMemoryLimiterを生成する。
// 期限切れのカウンタはttlcacheにより自動的に破棄される。Closeで停止すること。
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *counter](window),
		ttlcache.WithDisableTouchOnHit[string, *counter](),
	)
	go cache.Start()

	return &MemoryLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Consume はkeyの消費回数を1増やし、上限以内かを判定する。
func (l *MemoryLimiter) Consume(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var c *counter
	if item := l.cache.Get(key); item != nil {
		c = item.Value()
	}
	if c == nil || !now.Before(c.resetAt) {
		c = &counter{resetAt: windowStart(now, l.window).Add(l.window)}
		l.cache.Set(key, c, c.resetAt.Sub(now))
	}
	c.count++

	return decide(c.count, l.limit, c.resetAt), nil
}

// Len は保持しているカウンタ数を返す。
func (l *MemoryLimiter) Len() int {
	return l.cache.Len()
}

// Close は期限切れカウンタの自動削除を停止する。
func (l *MemoryLimiter) Close() {
	l.cache.Stop()
}

// compile-time interface check
var _ Limiter = (*MemoryLimiter)(nil)
