// Package ratelimit はログイン試行回数の制限を提供します。
package ratelimit

import (
	"context"
	"time"
)

// Policy はロックまでの失敗回数と期間を表します。
type Policy struct {
	MaxAttempts  int           // Window 内でこの回数失敗するとロック
	Window       time.Duration // 失敗回数を数える期間
	LockDuration time.Duration // ロック時間
}

// DefaultPolicy は 15分間に5回失敗で10分ロックする設定を返します。
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		Window:       15 * time.Minute,
		LockDuration: 10 * time.Minute,
	}
}

// Limiter はキー（通常はクライアントIP）単位で失敗回数を管理します。
type Limiter interface {
	// Check はロック中であれば残りのロック時間を返します。ロックされていなければ 0 です。
	Check(ctx context.Context, key string) (time.Duration, error)
	// Fail は失敗を記録し、ロックまでの残り回数を返します。
	Fail(ctx context.Context, key string) (int, error)
	// Reset は記録を消去します。
	Reset(ctx context.Context, key string) error
}
