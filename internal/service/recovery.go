package service

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"otpinbox/backend/internal/config"
	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/ratelimit"
	"otpinbox/backend/internal/security"
	"otpinbox/backend/internal/storage"
)

// ErrTooManyAttempts 恢复请求触发限流。
var ErrTooManyAttempts = errors.New("too many attempts")

// recoveryWindow 三个限流维度共用的滑动窗口。
const recoveryWindow = time.Hour

// NoticeSender 负责把恢复通知送达联系方式。
//
// 默认实现只写日志；接入真实邮件/短信通道时替换本接口实现。
type NoticeSender interface {
	SendRecoveryNotice(contact string, address *domain.Address) error
}

// LogNoticeSender 把恢复通知写进日志的兜底实现。
type LogNoticeSender struct {
	log *zap.Logger
}

// NewLogNoticeSender 创建日志通知发送器。
func NewLogNoticeSender(log *zap.Logger) *LogNoticeSender {
	return &LogNoticeSender{log: log}
}

// SendRecoveryNotice 记录一条恢复通知日志。
func (s *LogNoticeSender) SendRecoveryNotice(contact string, address *domain.Address) error {
	s.log.Info("recovery notice",
		zap.String("contact", contact),
		zap.String("address", address.Address))
	return nil
}

// RecoveryService 处理地址访问恢复请求。
type RecoveryService struct {
	store   storage.AddressRepository
	limiter *ratelimit.Limiter
	sender  NoticeSender
	cfg     *config.Config
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewRecoveryService 创建恢复服务。metrics 可传 nil。
func NewRecoveryService(store storage.AddressRepository, limiter *ratelimit.Limiter, sender NoticeSender, cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) *RecoveryService {
	return &RecoveryService{
		store:   store,
		limiter: limiter,
		sender:  sender,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
	}
}

// Request 处理一次恢复请求。
//
// 依次通过三道限流闸口（请求 IP、恢复联系方式哈希、目标地址），
// 任一拒绝即返回 ErrTooManyAttempts。联系方式与地址登记的恢复
// 哈希匹配时发送通知；不匹配时静默成功，避免暴露地址归属。
func (s *RecoveryService) Request(ip, contact, targetAddress string) error {
	contact = normalizeContact(contact)
	contactHash := security.HashSecret(contact)

	gates := []struct {
		scope string
		value string
		max   int
	}{
		{"recovery_ip", ip, s.cfg.RateLimit.RecoveryIPPerHour},
		{"recovery_contact", contactHash, s.cfg.RateLimit.RecoveryContactPerHour},
		{"recovery_target", targetAddress, s.cfg.RateLimit.RecoveryTargetPerHour},
	}

	for _, gate := range gates {
		allowed, err := s.limiter.Allow(ratelimit.Key(gate.scope, gate.value), gate.max, recoveryWindow)
		if err != nil {
			return err
		}
		if !allowed {
			if s.metrics != nil {
				s.metrics.RateLimitBlocks.WithLabelValues(gate.scope).Inc()
			}
			return ErrTooManyAttempts
		}
	}

	addr, err := s.store.GetAddressByAddress(targetAddress)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			s.log.Info("recovery request for unknown address",
				zap.String("address", targetAddress))
			return nil
		}
		return err
	}

	if addr.RecoveryHash == "" || !security.HashEqual(addr.RecoveryHash, contactHash) {
		s.log.Info("recovery contact mismatch",
			zap.String("address", targetAddress))
		return nil
	}

	if err := s.sender.SendRecoveryNotice(contact, addr); err != nil {
		s.log.Error("failed to send recovery notice",
			zap.String("address", targetAddress), zap.Error(err))
		return err
	}

	return nil
}
