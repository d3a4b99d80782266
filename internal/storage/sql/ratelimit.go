package sql

import (
	"time"

	"otpinbox/backend/internal/domain"
)

// DeleteRateLimitEventsBefore 惰性清理窗口之外的限流事件
func (s *Store) DeleteRateLimitEventsBefore(key string, cutoff time.Time) error {
	return s.db.Where("scope_key = ? AND created_at < ?", key, cutoff).
		Delete(&domain.RateLimitEvent{}).Error
}

// CountRateLimitEvents 统计指定 Key 的事件数量
func (s *Store) CountRateLimitEvents(key string) (int, error) {
	var count int64
	err := s.db.Model(&domain.RateLimitEvent{}).
		Where("scope_key = ?", key).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// InsertRateLimitEvent 追加一条限流事件
func (s *Store) InsertRateLimitEvent(key string, at time.Time) error {
	return s.db.Create(&domain.RateLimitEvent{Key: key, CreatedAt: at}).Error
}
