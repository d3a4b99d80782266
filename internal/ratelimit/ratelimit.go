// Package ratelimit 实现以持久事件日志为后端的滑动窗口限流。
//
// 所有状态都在存储层：每个请求独立执行"清理-计数-写入"三步，
// 进程内不做缓存，存储是唯一的一致性边界。同一机制通过不同的
// Key 组合服务于 IP、恢复联系方式、目标地址等多种限流维度。
package ratelimit

import (
	"fmt"
	"time"

	"otpinbox/backend/internal/storage"
)

// Limiter 滑动窗口限流器。
type Limiter struct {
	store storage.RateLimitRepository
	now   func() time.Time
}

// NewLimiter 创建限流器。
func NewLimiter(store storage.RateLimitRepository) *Limiter {
	return &Limiter{
		store: store,
		now:   time.Now,
	}
}

// Allow 检查 key 在窗口内是否还有配额。
//
// 放行时记录一次尝试；被拒绝的尝试不写入事件，
// 不会消耗后续的配额。窗口外的旧事件在检查时惰性清理。
func (l *Limiter) Allow(key string, maxAttempts int, window time.Duration) (bool, error) {
	now := l.now().UTC()
	windowStart := now.Add(-window)

	if err := l.store.DeleteRateLimitEventsBefore(key, windowStart); err != nil {
		return false, fmt.Errorf("cleanup rate limit events: %w", err)
	}

	count, err := l.store.CountRateLimitEvents(key)
	if err != nil {
		return false, fmt.Errorf("count rate limit events: %w", err)
	}
	if count >= maxAttempts {
		return false, nil
	}

	if err := l.store.InsertRateLimitEvent(key, now); err != nil {
		return false, fmt.Errorf("record rate limit event: %w", err)
	}
	return true, nil
}

// Key 拼接限流 Key，统一各调用方的格式。
func Key(scope, value string) string {
	return scope + ":" + value
}
