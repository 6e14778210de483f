package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// RedisPersister 将整个状态文档保存在一个Redis key中
type RedisPersister struct {
	redisClient *redis.Client
	key         string
	timeout     time.Duration
}

// NewRedisPersister 连接Redis，连接失败时返回错误
func NewRedisPersister(redisConfig types.RedisConfig) (*RedisPersister, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", redisConfig.URL, err)
	}
	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL), zap.String("key", redisConfig.Key))

	return newRedisPersister(client, redisConfig.Key), nil
}

func newRedisPersister(client *redis.Client, key string) *RedisPersister {
	return &RedisPersister{
		redisClient: client,
		key:         key,
		timeout:     3 * time.Second,
	}
}

func (p *RedisPersister) Name() string { return "redis:" + p.key }

// Load key不存在时返回空状态
func (p *RedisPersister) Load(ctx context.Context) (map[string]*types.ChatState, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := p.redisClient.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return make(map[string]*types.ChatState), nil
		}
		return nil, err
	}
	return decodeDocument(data)
}

func (p *RedisPersister) Save(ctx context.Context, chats map[string]*types.ChatState) error {
	data, err := encodeDocument(chats)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.redisClient.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.key, err)
	}
	return nil
}

// Close 关闭Redis连接
func (p *RedisPersister) Close() error {
	return p.redisClient.Close()
}
