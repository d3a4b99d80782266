package storage

import (
	"errors"
	"time"

	"otpinbox/backend/internal/domain"
)

var (
	// ErrAddressNotFound 地址未找到错误
	ErrAddressNotFound = errors.New("address not found")
	// ErrMessageNotFound 邮件未找到错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrAddressExists 地址已存在错误
	ErrAddressExists = errors.New("address already exists")
)

// AddressRepository 定义收件地址数据存取操作。
type AddressRepository interface {
	SaveAddress(address *domain.Address) error
	GetAddress(id string) (*domain.Address, error)
	GetAddressByAddress(address string) (*domain.Address, error)
	GetAddressByTokenHash(tokenHash string) (*domain.Address, error)
	UpdateAddress(address *domain.Address) error
	DeleteAddress(id string) error // 级联删除名下邮件与投递记录
	IncrementMessageCount(id string, delta int) error
	TouchActivity(id string, at time.Time) error
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	SaveMessage(message *domain.Message) error
	ListMessages(addressID string) ([]domain.Message, error)
	GetMessage(addressID, messageID string) (*domain.Message, error)
	MarkMessageRead(addressID, messageID string) error
	ArchiveMessage(addressID, messageID string) error
	DeleteMessage(addressID, messageID string) error
	// DeleteExpiredMessages 删除过期邮件，返回删除数量。
	DeleteExpiredMessages(now time.Time) (int, error)
	// DeleteOldestBeyondCap 按 FIFO 淘汰超出上限的最旧邮件，返回删除数量。
	DeleteOldestBeyondCap(addressID string, max int) (int, error)
	// LatestExtractedMessage 查询最近一封提取成功的邮件，
	// 可选按接收时间下界与发件人子串过滤；无匹配时返回 ErrMessageNotFound。
	LatestExtractedMessage(addressID string, since *time.Time, fromFilter string) (*domain.Message, error)
}

// DeliveryRepository 定义 Webhook 投递记录存取操作。
type DeliveryRepository interface {
	RecordDelivery(record *domain.WebhookDeliveryRecord) error
	ListDeliveries(addressID string, limit int) ([]domain.WebhookDeliveryRecord, error)
	// DeleteDeliveriesBefore 删除指定时间之前的投递记录，返回删除数量。
	DeleteDeliveriesBefore(cutoff time.Time) (int, error)
}

// RateLimitRepository 定义限流事件日志操作。
//
// 三个操作组合出滑动窗口计数：先按窗口起点惰性清理，再计数，
// 放行时追加一条新事件。
type RateLimitRepository interface {
	DeleteRateLimitEventsBefore(key string, cutoff time.Time) error
	CountRateLimitEvents(key string) (int, error)
	InsertRateLimitEvent(key string, at time.Time) error
}

// Store 定义完整的存储接口。
type Store interface {
	AddressRepository
	MessageRepository
	DeliveryRepository
	RateLimitRepository

	// 工具方法
	Close() error
	Health() error
}
