package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient はRedisLimiterが使用するRedisコマンドのサブセット。
// *redis.Clientが満たす。
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter はRedisのINCRによる固定ウィンドウリミッター。
// ウィンドウ最初のINCRの後にだけEXPIREを別コマンドで送る。
// 複数インスタンスで同じカウンタを共有できる。
// Redisに到達できない場合は許可する（fail open）。
type RedisLimiter struct {
	client RedisClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter はRedisLimiterを生成する。prefixはキーの名前空間で、末尾の":"は付けても付けなくてもよい。
func NewRedisLimiter(client RedisClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimRight(prefix, ":"),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Consume はkeyの消費回数を1増やし、上限以内かを判定する。
func (l *RedisLimiter) Consume(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	start := windowStart(now, l.window)
	resetAt := start.Add(l.window)
	redisKey := l.prefix + ":" + key + ":" + strconv.FormatInt(start.Unix(), 10)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		slog.Warn("rate limit counter unavailable, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: resetAt}, nil
	}
	if count == 1 {
		// ウィンドウ終了後にキーが残らないよう、初回のみ有効期限を設定する
		if err := l.client.Expire(ctx, redisKey, resetAt.Sub(now)+time.Second).Err(); err != nil {
			slog.Warn("failed to set rate limit expiry",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	return decide(int(count), l.limit, resetAt), nil
}

// compile-time interface check
var _ Limiter = (*RedisLimiter)(nil)
