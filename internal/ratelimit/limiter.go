// Package ratelimit は呼び出し元アドレス単位の固定ウィンドウレート制限を提供する。
package ratelimit

import (
	"context"
	"time"
)

// Decision はConsumeの判定結果。
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter はウィンドウがリセットされるまでの時間を返す。
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter は固定ウィンドウのリクエスト数カウンタ。
// keyごとにウィンドウ内の消費回数を数え、上限を超えたら拒否する。
type Limiter interface {
	Consume(ctx context.Context, key string) (Decision, error)
}

// windowStart はnowを含む固定ウィンドウの開始時刻を返す。
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
