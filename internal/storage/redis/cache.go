package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"otpinbox/backend/internal/domain"
)

// Cache Redis 缓存实现，为热点的令牌认证查询提供前置缓存。
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== 地址缓存 ==========

// CacheAddressByToken 按令牌哈希缓存地址信息
func (c *Cache) CacheAddressByToken(tokenHash string, address *domain.Address, ttl time.Duration) error {
	key := fmt.Sprintf("address:token:%s", tokenHash)
	data, err := json.Marshal(address)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedAddressByToken 获取按令牌哈希缓存的地址
func (c *Cache) GetCachedAddressByToken(tokenHash string) (*domain.Address, error) {
	key := fmt.Sprintf("address:token:%s", tokenHash)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("address not found in cache")
		}
		return nil, err
	}

	var address domain.Address
	if err := json.Unmarshal([]byte(data), &address); err != nil {
		return nil, err
	}
	return &address, nil
}

// InvalidateAddressToken 删除令牌哈希对应的缓存（轮换或删除地址时调用）
func (c *Cache) InvalidateAddressToken(tokenHash string) error {
	key := fmt.Sprintf("address:token:%s", tokenHash)
	return c.client.Del(c.ctx, key).Err()
}

// Health 检查 Redis 连接状态
func (c *Cache) Health() error {
	return c.client.Ping(c.ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
