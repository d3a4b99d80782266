package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/ratelimit"
)

// IPRateLimit 按来源 IP 的滑动窗口限流中间件
//
// scope 区分不同的限流用途, maxAttempts/window 来自配置。
// 限流事件持久化在存储层, 进程重启不会重置窗口。
func IPRateLimit(limiter *ratelimit.Limiter, scope string, maxAttempts int, window time.Duration, metrics *monitoring.Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(ratelimit.Key(scope, c.ClientIP()), maxAttempts, window)
		if err != nil {
			log.Error("限流检查失败", zap.String("scope", scope), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
			c.Abort()
			return
		}
		if !allowed {
			if metrics != nil {
				metrics.RateLimitBlocks.WithLabelValues(scope).Inc()
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
