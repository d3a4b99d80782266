package smtp

import (
	"errors"
	"io"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"otpinbox/backend/internal/config"
	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/service"
	"otpinbox/backend/internal/storage"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器：只接受发往本系统托管域名
// 下已存在地址的邮件，其余收件人一律 550 拒绝，不做任何中继。
type Backend struct {
	addresses storage.AddressRepository
	messages  *service.MessageService
	domainSet map[string]struct{}
	maxBytes  int64
	limiter   *ConnectionLimiter
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewBackend 创建 SMTP Backend。metrics 可传 nil。
func NewBackend(addresses storage.AddressRepository, messages *service.MessageService, cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) *Backend {
	domainSet := make(map[string]struct{}, len(cfg.Address.AllowedDomains))
	for _, d := range cfg.Address.AllowedDomains {
		domainSet[d] = struct{}{}
	}

	maxBytes := cfg.SMTP.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	maxConns := cfg.SMTP.MaxConnections
	if maxConns <= 0 {
		maxConns = 100
	}
	ratePerSecond := cfg.SMTP.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}

	return &Backend{
		addresses: addresses,
		messages:  messages,
		domainSet: domainSet,
		maxBytes:  maxBytes,
		limiter:   NewConnectionLimiter(maxConns, ratePerSecond),
		metrics:   metrics,
		log:       log,
	}
}

// NewSession 创建新的 SMTP 会话，超出连接配额时回 421。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只接受托管域名下已存在且处于激活状态的地址，
// 其余一律 550，防止服务器被当作中继。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if _, ok := s.backend.domainSet[parts[1]]; !ok {
		s.reject()
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	record, err := s.backend.addresses.GetAddressByAddress(addr)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			s.reject()
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      "recipient address not found",
			}
		}
		return err
	}
	if record.Status != domain.AddressActive {
		s.reject()
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient address disabled",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容，对每个收件人执行一次入站管道。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes))
	if err != nil {
		return err
	}

	for _, rcpt := range s.recipients {
		_, err := s.backend.messages.Ingest(service.IngestInput{
			Recipient: rcpt,
			Raw:       rawBytes,
		})
		if err != nil {
			// RCPT 之后地址被删除或停用属于正常竞争，跳过该收件人
			if errors.Is(err, service.ErrRecipientUnknown) || errors.Is(err, service.ErrRecipientDisabled) {
				s.backend.log.Info("recipient vanished between rcpt and data",
					zap.String("recipient", rcpt))
				continue
			}
			return err
		}
		if s.backend.metrics != nil {
			s.backend.metrics.SMTPMessagesAccepted.Inc()
		}
	}

	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，归还连接配额。
func (s *session) Logout() error {
	s.backend.limiter.Release()
	return nil
}

func (s *session) reject() {
	if s.backend.metrics != nil {
		s.backend.metrics.SMTPRecipientsDenied.Inc()
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
