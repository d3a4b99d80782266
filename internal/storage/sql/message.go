package sql

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/storage"
)

// SaveMessage 保存邮件
func (s *Store) SaveMessage(message *domain.Message) error {
	return s.db.Create(message).Error
}

// ListMessages 列出指定地址下的邮件，按接收时间倒序
func (s *Store) ListMessages(addressID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.Where("address_id = ?", addressID).
		Order("received_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage 获取单封邮件
func (s *Store) GetMessage(addressID, messageID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.Where("address_id = ? AND id = ?", addressID, messageID).First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

// MarkMessageRead 将邮件标记为已读
func (s *Store) MarkMessageRead(addressID, messageID string) error {
	result := s.db.Model(&domain.Message{}).
		Where("address_id = ? AND id = ?", addressID, messageID).
		UpdateColumn("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// ArchiveMessage 将邮件归档
func (s *Store) ArchiveMessage(addressID, messageID string) error {
	result := s.db.Model(&domain.Message{}).
		Where("address_id = ? AND id = ?", addressID, messageID).
		UpdateColumn("is_archived", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// DeleteMessage 删除指定邮件
func (s *Store) DeleteMessage(addressID, messageID string) error {
	result := s.db.Where("address_id = ? AND id = ?", addressID, messageID).Delete(&domain.Message{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// DeleteExpiredMessages 删除过期邮件，返回删除数量。
//
// 仅删除 expires_at 已过去的行，与进行中的写入并发安全。
func (s *Store) DeleteExpiredMessages(now time.Time) (int, error) {
	result := s.db.Where("expires_at < ?", now).Delete(&domain.Message{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// DeleteOldestBeyondCap 按 FIFO 淘汰超出上限的最旧邮件
func (s *Store) DeleteOldestBeyondCap(addressID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var total int64
	if err := s.db.Model(&domain.Message{}).
		Where("address_id = ?", addressID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	excess := int(total) - max
	if excess <= 0 {
		return 0, nil
	}

	var ids []string
	if err := s.db.Model(&domain.Message{}).
		Where("address_id = ?", addressID).
		Order("received_at ASC").
		Limit(excess).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	result := s.db.Where("address_id = ? AND id IN ?", addressID, ids).Delete(&domain.Message{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// LatestExtractedMessage 查询最近一封提取成功的邮件
func (s *Store) LatestExtractedMessage(addressID string, since *time.Time, fromFilter string) (*domain.Message, error) {
	query := s.db.Where("address_id = ? AND extracted = ? AND (otp_code IS NOT NULL OR otp_link IS NOT NULL)", addressID, true)
	if since != nil {
		query = query.Where("received_at > ?", *since)
	}

	if fromFilter == "" {
		var message domain.Message
		err := query.Order("received_at DESC").First(&message).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, storage.ErrMessageNotFound
			}
			return nil, err
		}
		return &message, nil
	}

	// MySQL 默认排序规则下 LIKE 不区分大小写，发件人过滤要求大小写敏感，
	// 先用 LIKE 缩小候选集，再在应用层做精确子串匹配。
	var candidates []domain.Message
	err := query.Where("from_address LIKE ?", "%"+escapeLike(fromFilter)+"%").
		Order("received_at DESC").
		Limit(50).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if strings.Contains(candidates[i].From, fromFilter) {
			return &candidates[i], nil
		}
	}
	return nil, storage.ErrMessageNotFound
}

// escapeLike 转义 LIKE 模式中的通配符
func escapeLike(value string) string {
	out := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, value[i])
	}
	return string(out)
}
