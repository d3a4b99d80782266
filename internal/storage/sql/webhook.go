package sql

import (
	"time"

	"otpinbox/backend/internal/domain"
)

// RecordDelivery 记录一次 Webhook 投递结果
func (s *Store) RecordDelivery(record *domain.WebhookDeliveryRecord) error {
	return s.db.Create(record).Error
}

// ListDeliveries 获取指定地址的投递记录，按时间倒序
func (s *Store) ListDeliveries(addressID string, limit int) ([]domain.WebhookDeliveryRecord, error) {
	var records []domain.WebhookDeliveryRecord
	err := s.db.Where("address_id = ?", addressID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteDeliveriesBefore 删除指定时间之前的投递记录
func (s *Store) DeleteDeliveriesBefore(cutoff time.Time) (int, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&domain.WebhookDeliveryRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}
