package service

import (
	"Fitlink/internal/pkg/redis"
	"context"
	"time"
)

// DistLocker 跨实例互斥锁抽象，生产环境基于 Redis SETNX 实现
type DistLocker interface {
	TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retry int) (bool, error)
	Unlock(ctx context.Context, key string, value interface{})
}

type redisDistLocker struct{}

func NewRedisDistLocker() DistLocker {
	return &redisDistLocker{}
}

func (l *redisDistLocker) TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retry int) (bool, error) {
	return redis.TryLock(ctx, key, value, expiration, retry)
}

func (l *redisDistLocker) Unlock(ctx context.Context, key string, value interface{}) {
	redis.UnLock(ctx, key, value)
}
