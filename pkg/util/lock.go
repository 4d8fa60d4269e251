package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld 表示锁已被其他请求持有
var ErrLockHeld = errors.New("lock is held by another request")

// 只有持有者（token 相同）才能删除锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 SetNX 的互斥锁，TTL 到期自动释放
type RedisLock struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisLock(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisLock {
	return &RedisLock{
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

// Acquire 尝试获取 key 对应的锁，成功时返回释放函数。
// 锁被占用时返回 ErrLockHeld。Redis 不可用时不阻止处理，返回空操作的释放函数。
func (l *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("%s:%s", l.prefix, key)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("Redis lock unavailable, allowing processing",
				zap.String("lock_key", lockKey),
				zap.Error(err),
			)
		}
		return func() {}, nil
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func() {
		// 使用独立 context，请求取消后仍能释放锁
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.rdb, []string{lockKey}, token).Err(); err != nil && l.logger != nil {
			l.logger.Warn("Failed to release redis lock",
				zap.String("lock_key", lockKey),
				zap.Error(err),
			)
		}
	}, nil
}
