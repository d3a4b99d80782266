package service

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/pool"
	"otpinbox/backend/internal/storage"
)

// WebhookService 负责 Webhook 事件的投递与记录。
//
// 每个事件只投递一次，不做自动重试；无论成败都写入投递记录，
// 订阅方可据此自行补偿。投递在协程池中异步执行，永不阻塞入站管道。
type WebhookService struct {
	store      storage.DeliveryRepository
	httpClient *http.Client
	workers    *pool.WorkerPool
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewWebhookService 创建 Webhook 服务。metrics 可传 nil。
func NewWebhookService(store storage.DeliveryRepository, workers *pool.WorkerPool, metrics *monitoring.Metrics, log *zap.Logger, timeout time.Duration) *WebhookService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookService{
		store: store,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		workers: workers,
		metrics: metrics,
		log:     log,
	}
}

// Dispatch 调度一次投递。
//
// 任务进入协程池异步执行；队列满时降级为独立协程，
// 保证"每封邮件恰好一次投递尝试"不因背压丢失。
func (s *WebhookService) Dispatch(address *domain.Address, message *domain.Message) {
	if !address.HasWebhook() {
		return
	}

	// 复制投递所需字段，避免任务执行时引用已被修改的对象
	target := *address
	event := domain.NewEmailReceivedEvent(address, message)

	task := func() { s.Deliver(&target, event) }
	if s.workers == nil || !s.workers.TrySubmit(task) {
		go task()
	}
}

// Deliver 执行单次投递并记录结果，返回是否投递成功。
//
// 签名基于序列化后的确切字节；网络不可达时状态码记为 0。
func (s *WebhookService) Deliver(address *domain.Address, event domain.WebhookEvent) bool {
	record := &domain.WebhookDeliveryRecord{
		ID:        uuid.NewString(),
		AddressID: address.ID,
		Event:     event.Event,
		Attempts:  1,
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		record.Success = false
		record.Error = fmt.Sprintf("failed to marshal payload: %v", err)
		s.finish(record, "marshal_error")
		return false
	}
	record.Payload = string(payload)

	startTime := time.Now()
	req, err := http.NewRequest(http.MethodPost, address.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		record.Success = false
		record.Error = fmt.Sprintf("failed to create request: %v", err)
		record.Duration = time.Since(startTime).Milliseconds()
		s.finish(record, "request_error")
		return false
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(event.Event))
	req.Header.Set("X-Webhook-ID", record.ID)
	if address.WebhookSecret != "" {
		req.Header.Set("X-Webhook-Signature", signPayload(payload, address.WebhookSecret))
	}

	resp, err := s.httpClient.Do(req)
	record.Duration = time.Since(startTime).Milliseconds()

	if err != nil {
		record.StatusCode = 0
		record.Success = false
		record.Error = fmt.Sprintf("failed to send request: %v", err)
		s.finish(record, "network_error")
		return false
	}
	defer resp.Body.Close()

	record.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		record.Success = true
		s.finish(record, "success")
		return true
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	record.Success = false
	record.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))
	s.finish(record, "http_error")
	return false
}

// ListDeliveries 查询地址的投递记录，按时间倒序。
func (s *WebhookService) ListDeliveries(addressID string, limit int) ([]domain.WebhookDeliveryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.ListDeliveries(addressID, limit)
}

// finish 落库投递记录并上报指标。
func (s *WebhookService) finish(record *domain.WebhookDeliveryRecord, outcome string) {
	if err := s.store.RecordDelivery(record); err != nil {
		s.log.Error("failed to record webhook delivery",
			zap.String("address_id", record.AddressID),
			zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
		s.metrics.WebhookDeliverySeconds.Observe(float64(record.Duration) / 1000)
	}

	if !record.Success {
		s.log.Warn("webhook delivery failed",
			zap.String("address_id", record.AddressID),
			zap.Int("status_code", record.StatusCode),
			zap.String("error", record.Error))
	}
}

// signPayload 生成 HMAC-SHA256 签名头的值。
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
