package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failKeyPrefix = "login:fail:"
	lockKeyPrefix = "login:lock:"
)

// failScript は失敗回数の加算と期限設定を1回の操作で行う。
// TTL の無いキーが残っていた場合もここで期限が付く。
var failScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Redis は Redis 上で失敗回数を管理する Limiter です。
// 複数インスタンスで同じ制限を共有できます。
type Redis struct {
	rdb    redis.UniversalClient
	policy Policy
}

// NewRedis は Redis を作成します。
func NewRedis(rdb redis.UniversalClient, policy Policy) *Redis {
	return &Redis{
		rdb:    rdb,
		policy: policy,
	}
}

// Check は Limiter を実装します。
func (r *Redis) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.PTTL(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: read lock ttl: %w", err)
	}
	// キーが存在しない場合は負の値が返る
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// Fail は Limiter を実装します。
func (r *Redis) Fail(ctx context.Context, key string) (int, error) {
	failKey := failKeyPrefix + key

	count, err := failScript.Run(ctx, r.rdb, []string{failKey}, r.policy.Window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: increment failures: %w", err)
	}

	if count >= int64(r.policy.MaxAttempts) {
		pipe := r.rdb.TxPipeline()
		pipe.Set(ctx, lockKeyPrefix+key, "1", r.policy.LockDuration)
		pipe.Del(ctx, failKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("ratelimit: lock key: %w", err)
		}
		return 0, nil
	}

	return r.policy.MaxAttempts - int(count), nil
}

// Reset は Limiter を実装します。
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, failKeyPrefix+key, lockKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit: reset: %w", err)
	}
	return nil
}
