package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/extract"
	"otpinbox/backend/internal/mailparse"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/retention"
	"otpinbox/backend/internal/storage"
)

var (
	ErrRecipientUnknown  = errors.New("recipient unknown")
	ErrRecipientDisabled = errors.New("recipient disabled")
)

// MessageService 封装邮件入站与读取业务。
type MessageService struct {
	store    storage.Store
	webhooks *WebhookService
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewMessageService 创建邮件业务服务。webhooks 与 metrics 可传 nil。
func NewMessageService(store storage.Store, webhooks *WebhookService, metrics *monitoring.Metrics, log *zap.Logger) *MessageService {
	return &MessageService{
		store:    store,
		webhooks: webhooks,
		metrics:  metrics,
		log:      log,
	}
}

// IngestInput 定义入站邮件的输入。
type IngestInput struct {
	Recipient   string // 收件地址（信封 RCPT）
	Raw         []byte // 原始报文（头 + 体）
	ContentType string // 传输层声明的内容类型，可为空
}

// Ingest 执行入站管道：解析 → 提取 → 计算过期 → 落库 →
// 计数与活跃时间 → FIFO 淘汰 → 异步 Webhook 投递。
//
// 提取结果随邮件一次性原子写入。落库之前的存储错误向上传播；
// 落库之后的步骤相互隔离，单步失败只记日志不影响已入库的邮件。
func (s *MessageService) Ingest(input IngestInput) (*domain.Message, error) {
	recipient := strings.ToLower(strings.TrimSpace(input.Recipient))
	addr, err := s.store.GetAddressByAddress(recipient)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return nil, ErrRecipientUnknown
		}
		return nil, err
	}
	if addr.Status != domain.AddressActive {
		return nil, ErrRecipientDisabled
	}

	parsed := mailparse.Parse(input.Raw, input.ContentType)
	result := extract.Extract(parsed.Subject, parsed.Text, parsed.HTML)

	now := time.Now().UTC()
	message := &domain.Message{
		ID:         uuid.NewString(),
		AddressID:  addr.ID,
		From:       parsed.From,
		FromName:   parsed.FromName,
		Subject:    parsed.Subject,
		Text:       parsed.Text,
		HTML:       parsed.HTML,
		RawHeaders: parsed.RawHeaders,
		OTPCode:    result.Code,
		OTPLink:    result.Link,
		Extracted:  result.Code != nil || result.Link != nil,
		ExpiresAt:  retention.ComputeExpiry(addr.Plan, now),
		ReceivedAt: now,
		CreatedAt:  now,
	}

	if err := s.store.SaveMessage(message); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	s.afterPersist(addr, message)
	return message, nil
}

// afterPersist 执行落库后的旁路步骤，失败彼此隔离。
func (s *MessageService) afterPersist(addr *domain.Address, message *domain.Message) {
	now := message.ReceivedAt

	if err := s.store.IncrementMessageCount(addr.ID, 1); err != nil {
		s.log.Error("failed to bump message count",
			zap.String("address_id", addr.ID), zap.Error(err))
	}
	if err := s.store.TouchActivity(addr.ID, now); err != nil {
		s.log.Error("failed to touch address activity",
			zap.String("address_id", addr.ID), zap.Error(err))
	}

	if addr.MaxMessages > 0 {
		evicted, err := s.store.DeleteOldestBeyondCap(addr.ID, addr.MaxMessages)
		if err != nil {
			s.log.Error("failed to evict messages beyond cap",
				zap.String("address_id", addr.ID), zap.Error(err))
		} else if evicted > 0 {
			if err := s.store.IncrementMessageCount(addr.ID, -evicted); err != nil {
				s.log.Error("failed to adjust message count after eviction",
					zap.String("address_id", addr.ID), zap.Error(err))
			}
			if s.metrics != nil {
				s.metrics.MessagesEvicted.Add(float64(evicted))
			}
		}
	}

	if s.metrics != nil {
		s.metrics.MessagesReceived.Inc()
		if message.OTPCode != nil {
			s.metrics.OTPCodesExtracted.Inc()
		}
		if message.OTPLink != nil {
			s.metrics.OTPLinksExtracted.Inc()
		}
	}

	s.log.Info("message ingested",
		zap.String("address", addr.Address),
		zap.String("message_id", message.ID),
		zap.String("from", message.From),
		zap.Bool("extracted", message.Extracted))

	if s.webhooks != nil {
		s.webhooks.Dispatch(addr, message)
	}
}

// List 返回地址名下的全部邮件，按接收时间倒序。
func (s *MessageService) List(addressID string) ([]domain.Message, error) {
	return s.store.ListMessages(addressID)
}

// Get 获取单封邮件。
func (s *MessageService) Get(addressID, messageID string) (*domain.Message, error) {
	return s.store.GetMessage(addressID, messageID)
}

// MarkRead 标记邮件为已读。
func (s *MessageService) MarkRead(addressID, messageID string) error {
	return s.store.MarkMessageRead(addressID, messageID)
}

// Archive 归档邮件。
func (s *MessageService) Archive(addressID, messageID string) error {
	return s.store.ArchiveMessage(addressID, messageID)
}

// Delete 删除单封邮件并回调地址计数。
func (s *MessageService) Delete(addressID, messageID string) error {
	if err := s.store.DeleteMessage(addressID, messageID); err != nil {
		return err
	}
	if err := s.store.IncrementMessageCount(addressID, -1); err != nil {
		s.log.Error("failed to adjust message count after delete",
			zap.String("address_id", addressID), zap.Error(err))
	}
	return nil
}
