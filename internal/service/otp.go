package service

import (
	"context"
	"errors"
	"time"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/storage"
)

// 长轮询等待的参数边界。
const (
	otpPollInterval = time.Second
	otpMaxWait      = 30 * time.Second
)

// OTPStatus 长轮询等待的结束状态。
type OTPStatus string

const (
	OTPFound         OTPStatus = "FOUND"          // 找到提取成功的邮件
	OTPTimedOut      OTPStatus = "TIMED_OUT"      // 等待期内未出现
	OTPImmediateMiss OTPStatus = "IMMEDIATE_MISS" // 超时为 0 的单次查询未命中
)

// OTPResult 长轮询等待的结果。
type OTPResult struct {
	Status     OTPStatus `json:"status"`
	MessageID  string    `json:"messageId,omitempty"`
	From       string    `json:"from,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	ReceivedAt time.Time `json:"receivedAt,omitempty"`
	Code       *string   `json:"code,omitempty"`
	Link       *string   `json:"link,omitempty"`
}

// OTPService 提供验证码的阻塞式取回。
type OTPService struct {
	store   storage.MessageRepository
	metrics *monitoring.Metrics
	sleep   func(time.Duration)
	now     func() time.Time
}

// NewOTPService 创建 OTP 取回服务。metrics 可传 nil。
func NewOTPService(store storage.MessageRepository, metrics *monitoring.Metrics) *OTPService {
	return &OTPService{
		store:   store,
		metrics: metrics,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// WaitForOTP 阻塞等待地址收到提取成功的邮件。
//
// 每秒轮询一次，timeout 上限 30 秒；timeout 为 0 时只查一次。
// since 过滤接收时间晚于该时刻的邮件，fromFilter 对发件人做
// 大小写敏感的子串匹配。等待只受 timeout 约束，调用方断开
// 不中止轮询；ctx 仅用于进程关闭时提前退出。
func (s *OTPService) WaitForOTP(ctx context.Context, addressID string, timeout time.Duration, since *time.Time, fromFilter string) (*OTPResult, error) {
	if timeout > otpMaxWait {
		timeout = otpMaxWait
	}

	result, err := s.poll(addressID, since, fromFilter)
	if err != nil {
		return nil, err
	}
	if result != nil {
		s.observe(OTPFound)
		return result, nil
	}

	if timeout <= 0 {
		s.observe(OTPImmediateMiss)
		return &OTPResult{Status: OTPImmediateMiss}, nil
	}

	deadline := s.now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !s.now().Before(deadline) {
			s.observe(OTPTimedOut)
			return &OTPResult{Status: OTPTimedOut}, nil
		}

		s.sleep(otpPollInterval)

		result, err := s.poll(addressID, since, fromFilter)
		if err != nil {
			return nil, err
		}
		if result != nil {
			s.observe(OTPFound)
			return result, nil
		}
	}
}

// poll 执行一次查询，未命中返回 (nil, nil)。
func (s *OTPService) poll(addressID string, since *time.Time, fromFilter string) (*OTPResult, error) {
	message, err := s.store.LatestExtractedMessage(addressID, since, fromFilter)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return foundResult(message), nil
}

// observe 上报等待结果指标。
func (s *OTPService) observe(status OTPStatus) {
	if s.metrics != nil {
		s.metrics.OTPWaitResults.WithLabelValues(string(status)).Inc()
	}
}

func foundResult(message *domain.Message) *OTPResult {
	return &OTPResult{
		Status:     OTPFound,
		MessageID:  message.ID,
		From:       message.From,
		Subject:    message.Subject,
		ReceivedAt: message.ReceivedAt,
		Code:       message.OTPCode,
		Link:       message.OTPLink,
	}
}
