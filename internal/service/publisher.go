package service

import (
	"Fitlink/internal/pkg/redis"
	"context"
)

// EventPublisher 事件总线抽象，生产环境为 Redis 发布，测试中可替换
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type redisEventPublisher struct{}

func NewRedisEventPublisher() EventPublisher {
	return &redisEventPublisher{}
}

func (p *redisEventPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return redis.Publish(ctx, channel, payload)
}
