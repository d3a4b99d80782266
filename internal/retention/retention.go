// Package retention 实现按套餐分级的保留策略与后台清理。
//
// 邮件的过期时间在入站时一次性计算并固化，之后套餐变更不回溯
// 已有邮件。后台 Sweeper 周期性删除已过期的邮件和超过固定保留
// 期的 Webhook 投递记录。
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/storage"
)

// 各套餐的邮件保留期。
const (
	RetentionFree  = 7 * 24 * time.Hour
	RetentionTier2 = 30 * 24 * time.Hour
	RetentionTier3 = 90 * 24 * time.Hour

	// DeliveryRetention Webhook 投递记录的保留期，与套餐无关。
	DeliveryRetention = 7 * 24 * time.Hour
)

// ComputeExpiry 根据套餐计算从 receivedAt 起算的过期时间。
// 未知套餐按免费档处理。
func ComputeExpiry(plan domain.PlanTier, receivedAt time.Time) time.Time {
	switch plan {
	case domain.PlanTier2:
		return receivedAt.Add(RetentionTier2)
	case domain.PlanTier3:
		return receivedAt.Add(RetentionTier3)
	default:
		return receivedAt.Add(RetentionFree)
	}
}

// Sweeper 后台保留策略执行器。
type Sweeper struct {
	store    storage.Store
	log      *zap.Logger
	metrics  *monitoring.Metrics
	interval time.Duration
	now      func() time.Time
}

// NewSweeper 创建 Sweeper，interval 为扫描周期。metrics 可传 nil。
func NewSweeper(store storage.Store, log *zap.Logger, metrics *monitoring.Metrics, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		log:      log,
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
	}
}

// Run 周期性执行清理，直到 ctx 取消。启动时先执行一轮。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("starting retention sweeper", zap.Duration("interval", s.interval))

	s.SweepOnce()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("retention sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce 执行一轮清理：过期邮件和超期投递记录。
func (s *Sweeper) SweepOnce() {
	now := s.now().UTC()

	removed, err := s.store.DeleteExpiredMessages(now)
	if err != nil {
		s.log.Error("failed to delete expired messages", zap.Error(err))
	} else if removed > 0 {
		if s.metrics != nil {
			s.metrics.MessagesExpired.Add(float64(removed))
		}
		s.log.Info("expired messages deleted", zap.Int("count", removed))
	}

	purged, err := s.store.DeleteDeliveriesBefore(now.Add(-DeliveryRetention))
	if err != nil {
		s.log.Error("failed to purge delivery records", zap.Error(err))
	} else if purged > 0 {
		s.log.Info("old delivery records purged", zap.Int("count", purged))
	}
}
