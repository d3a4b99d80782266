package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter SMTP 连接限流器。
//
// 两道闸口：并发连接数上限，以及新建连接的令牌桶速率限制。
type ConnectionLimiter struct {
	maxConns int
	current  int
	mu       sync.Mutex
	rate     *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器。
//
// maxConns 为最大并发连接数，ratePerSecond 为每秒新建连接上限。
func NewConnectionLimiter(maxConns int, ratePerSecond float64) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxConns: maxConns,
		rate:     rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
	}
}

// Acquire 获取连接许可。
func (l *ConnectionLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.maxConns {
		return false
	}
	if !l.rate.Allow() {
		return false
	}

	l.current++
	return true
}

// Release 释放连接。
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前连接数。
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
