package memory

import (
	"time"

	"otpinbox/backend/internal/domain"
)

// RecordDelivery 记录一次 Webhook 投递结果。
func (s *Store) RecordDelivery(record *domain.WebhookDeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveries[record.AddressID] = append(s.deliveries[record.AddressID], record)
	return nil
}

// ListDeliveries 获取指定地址的投递记录，按时间倒序。
func (s *Store) ListDeliveries(addressID string, limit int) ([]domain.WebhookDeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.deliveries[addressID]
	out := make([]domain.WebhookDeliveryRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *records[i])
	}
	return out, nil
}

// DeleteDeliveriesBefore 删除指定时间之前的投递记录。
func (s *Store) DeleteDeliveriesBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for addressID, records := range s.deliveries {
		kept := records[:0]
		for _, record := range records {
			if record.CreatedAt.Before(cutoff) {
				count++
				continue
			}
			kept = append(kept, record)
		}
		s.deliveries[addressID] = kept
	}
	return count, nil
}
