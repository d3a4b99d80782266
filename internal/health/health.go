package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"otpinbox/backend/internal/storage"
	rediscache "otpinbox/backend/internal/storage/redis"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	// 存储探活同时作为就绪条件
	hc.health.AddLivenessCheck("storage", func() error {
		return hc.store.Health()
	})
	hc.health.AddReadinessCheck("storage", func() error {
		return hc.store.Health()
	})

	return hc
}

// AddRedisCheck 注册 Redis 缓存的就绪检查。
// 缓存不可用只影响就绪状态，不触发存活失败。
func (hc *HealthChecker) AddRedisCheck(cache *rediscache.Cache) {
	if cache == nil {
		return
	}
	hc.health.AddReadinessCheck("redis", func() error {
		return cache.Health()
	})
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活探针端点
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针端点
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}
