package memory

import (
	"sync"
	"time"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/storage"
)

// Store 使用内存保存地址与邮件数据，主要用于开发验证与测试。
type Store struct {
	mu        sync.RWMutex
	addresses map[string]*domain.Address
	byAddress map[string]string // address -> addressID
	byToken   map[string]string // tokenHash -> addressID
	messages  map[string]map[string]*domain.Message // addressID -> messageID -> message

	// Webhook 投递记录（按地址 ID）
	deliveries map[string][]*domain.WebhookDeliveryRecord

	// 限流事件日志（按 Key）
	rateEvents map[string][]time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		addresses:  make(map[string]*domain.Address),
		byAddress:  make(map[string]string),
		byToken:    make(map[string]string),
		messages:   make(map[string]map[string]*domain.Message),
		deliveries: make(map[string][]*domain.WebhookDeliveryRecord),
		rateEvents: make(map[string][]time.Time),
	}
}

// SaveAddress 保存收件地址。
func (s *Store) SaveAddress(address *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAddress[address.Address]; ok && existing != address.ID {
		return storage.ErrAddressExists
	}

	s.addresses[address.ID] = address
	s.byAddress[address.Address] = address.ID
	if address.TokenHash != "" {
		s.byToken[address.TokenHash] = address.ID
	}
	return nil
}

// GetAddress 根据 ID 获取地址。
func (s *Store) GetAddress(id string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.addresses[id]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	copied := *address
	return &copied, nil
}

// GetAddressByAddress 根据完整邮箱地址获取地址。
func (s *Store) GetAddressByAddress(addr string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[addr]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	copied := *s.addresses[id]
	return &copied, nil
}

// GetAddressByTokenHash 根据令牌哈希获取地址。
func (s *Store) GetAddressByTokenHash(tokenHash string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[tokenHash]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	copied := *s.addresses[id]
	return &copied, nil
}

// UpdateAddress 更新地址信息。
func (s *Store) UpdateAddress(address *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.addresses[address.ID]
	if !ok {
		return storage.ErrAddressNotFound
	}

	// 令牌轮换后清理旧哈希索引
	if existing.TokenHash != address.TokenHash {
		delete(s.byToken, existing.TokenHash)
		if address.TokenHash != "" {
			s.byToken[address.TokenHash] = address.ID
		}
	}

	s.addresses[address.ID] = address
	s.byAddress[address.Address] = address.ID
	return nil
}

// DeleteAddress 删除地址，并级联删除名下邮件与投递记录。
func (s *Store) DeleteAddress(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	address, ok := s.addresses[id]
	if !ok {
		return storage.ErrAddressNotFound
	}

	delete(s.byAddress, address.Address)
	delete(s.byToken, address.TokenHash)
	delete(s.addresses, id)
	delete(s.messages, id)
	delete(s.deliveries, id)
	return nil
}

// IncrementMessageCount 调整地址的邮件计数。
func (s *Store) IncrementMessageCount(id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	address, ok := s.addresses[id]
	if !ok {
		return storage.ErrAddressNotFound
	}
	address.MessageCount += delta
	if address.MessageCount < 0 {
		address.MessageCount = 0
	}
	return nil
}

// TouchActivity 更新地址的最近活跃时间。
func (s *Store) TouchActivity(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	address, ok := s.addresses[id]
	if !ok {
		return storage.ErrAddressNotFound
	}
	address.LastActiveAt = at
	return nil
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态。
func (s *Store) Health() error {
	return nil
}
