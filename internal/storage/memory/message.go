package memory

import (
	"sort"
	"strings"
	"time"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/storage"
)

// SaveMessage 保存邮件。
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[message.AddressID]; !ok {
		return storage.ErrAddressNotFound
	}

	bucket, ok := s.messages[message.AddressID]
	if !ok {
		bucket = make(map[string]*domain.Message)
		s.messages[message.AddressID] = bucket
	}
	bucket[message.ID] = message
	return nil
}

// ListMessages 列出指定地址下的邮件，按接收时间倒序。
func (s *Store) ListMessages(addressID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.messages[addressID]
	out := make([]domain.Message, 0, len(bucket))
	for _, message := range bucket {
		out = append(out, *message)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

// GetMessage 获取单封邮件。
func (s *Store) GetMessage(addressID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[addressID][messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	copied := *message
	return &copied, nil
}

// MarkMessageRead 将邮件标记为已读。
func (s *Store) MarkMessageRead(addressID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[addressID][messageID]
	if !ok {
		return storage.ErrMessageNotFound
	}
	message.IsRead = true
	return nil
}

// ArchiveMessage 将邮件归档。
func (s *Store) ArchiveMessage(addressID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[addressID][messageID]
	if !ok {
		return storage.ErrMessageNotFound
	}
	message.IsArchived = true
	return nil
}

// DeleteMessage 删除指定邮件。
func (s *Store) DeleteMessage(addressID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.messages[addressID]
	if _, ok := bucket[messageID]; !ok {
		return storage.ErrMessageNotFound
	}
	delete(bucket, messageID)
	return nil
}

// DeleteExpiredMessages 删除过期邮件，返回删除数量。
//
// 与 SQL 后端一致，MessageCount 计数由服务层统一维护，
// 存储层删除不动计数。
func (s *Store) DeleteExpiredMessages(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, bucket := range s.messages {
		for messageID, message := range bucket {
			if message.ExpiresAt.Before(now) {
				delete(bucket, messageID)
				count++
			}
		}
	}
	return count, nil
}

// DeleteOldestBeyondCap 按 FIFO 淘汰超出上限的最旧邮件。
func (s *Store) DeleteOldestBeyondCap(addressID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.messages[addressID]
	if len(bucket) <= max {
		return 0, nil
	}

	ordered := make([]*domain.Message, 0, len(bucket))
	for _, message := range bucket {
		ordered = append(ordered, message)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
	})

	excess := len(ordered) - max
	for i := 0; i < excess; i++ {
		delete(bucket, ordered[i].ID)
	}
	return excess, nil
}

// LatestExtractedMessage 查询最近一封提取成功的邮件。
func (s *Store) LatestExtractedMessage(addressID string, since *time.Time, fromFilter string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Message
	for _, message := range s.messages[addressID] {
		if !message.Extracted || !message.HasOTP() {
			continue
		}
		if since != nil && !message.ReceivedAt.After(*since) {
			continue
		}
		// 发件人过滤为大小写敏感的子串匹配
		if fromFilter != "" && !strings.Contains(message.From, fromFilter) {
			continue
		}
		if latest == nil || message.ReceivedAt.After(latest.ReceivedAt) {
			latest = message
		}
	}
	if latest == nil {
		return nil, storage.ErrMessageNotFound
	}
	copied := *latest
	return &copied, nil
}
