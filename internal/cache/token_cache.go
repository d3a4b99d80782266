// Package cache 提供进程内的令牌认证缓存（L1）。
package cache

import (
	"sync"
	"time"

	"otpinbox/backend/internal/domain"
)

// TokenCache 按令牌哈希缓存地址，挡在存储（及 Redis）之前。
//
// 使用 sync.Map 实现无锁读取；条目带 TTL，
// 令牌轮换和地址删除时由调用方主动失效。
type TokenCache struct {
	data sync.Map
	ttl  time.Duration
}

type tokenEntry struct {
	address   *domain.Address
	expiresAt time.Time
}

// NewTokenCache 创建令牌缓存，ttl 为条目有效期。
func NewTokenCache(ttl time.Duration) *TokenCache {
	cache := &TokenCache{ttl: ttl}
	go cache.cleanupLoop()
	return cache
}

// Get 按令牌哈希查找地址。
func (c *TokenCache) Get(tokenHash string) (*domain.Address, bool) {
	val, ok := c.data.Load(tokenHash)
	if !ok {
		return nil, false
	}

	entry := val.(*tokenEntry)
	if time.Now().After(entry.expiresAt) {
		c.data.Delete(tokenHash)
		return nil, false
	}

	copied := *entry.address
	return &copied, true
}

// Set 缓存令牌哈希到地址的映射。
func (c *TokenCache) Set(tokenHash string, address *domain.Address) {
	copied := *address
	c.data.Store(tokenHash, &tokenEntry{
		address:   &copied,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Invalidate 删除令牌哈希对应的条目。
func (c *TokenCache) Invalidate(tokenHash string) {
	c.data.Delete(tokenHash)
}

// cleanupLoop 定期清理过期条目。
func (c *TokenCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.data.Range(func(key, value interface{}) bool {
			entry := value.(*tokenEntry)
			if now.After(entry.expiresAt) {
				c.data.Delete(key)
			}
			return true
		})
	}
}
