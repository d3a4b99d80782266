package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"otpinbox/backend/internal/cache"
	"otpinbox/backend/internal/config"
	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/security"
	"otpinbox/backend/internal/storage"
	rediscache "otpinbox/backend/internal/storage/redis"
)

var (
	ErrDomainNotAllowed  = errors.New("domain not allowed")
	ErrPrefixInvalid     = errors.New("prefix invalid")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidWebhookURL = errors.New("invalid webhook url")
	ErrInvalidPlan       = errors.New("invalid plan")
)

// 令牌认证缓存的有效期。轮换和删除会主动失效，
// TTL 只兜底多实例部署下的陈旧副本；本地 L1 故意更短。
const (
	localTokenTTL = 30 * time.Second
	redisTokenTTL = 5 * time.Minute
)

// AddressService 封装收件地址相关业务操作。
type AddressService struct {
	store          storage.Store
	local          *cache.TokenCache
	cache          *rediscache.Cache // 可为 nil，未启用 Redis 时跳过 L2
	cfg            *config.Config
	domainSet      map[string]struct{}
	emailValidator *domain.EmailValidator
}

// NewAddressService 创建地址业务服务。rcache 可传 nil。
func NewAddressService(store storage.Store, rcache *rediscache.Cache, cfg *config.Config) *AddressService {
	domainSet := make(map[string]struct{}, len(cfg.Address.AllowedDomains))
	for _, d := range cfg.Address.AllowedDomains {
		domainSet[d] = struct{}{}
	}

	return &AddressService{
		store:          store,
		local:          cache.NewTokenCache(localTokenTTL),
		cache:          rcache,
		cfg:            cfg,
		domainSet:      domainSet,
		emailValidator: domain.NewEmailValidator(),
	}
}

// CreateAddressInput 定义创建地址所需的输入。
type CreateAddressInput struct {
	Prefix          string
	Domain          string
	Plan            domain.PlanTier
	RecoveryContact string // 可选，仅保存哈希
	WebhookURL      string // 可选
	WebhookSecret   string // 可选，仅在设置了 WebhookURL 时生效
}

// Create 创建新的收件地址。
//
// 明文访问令牌只在返回值中出现一次，落库的是 SHA-256 哈希。
func (s *AddressService) Create(input CreateAddressInput) (*domain.Address, string, error) {
	selectedDomain := s.pickDomain(input.Domain)
	if selectedDomain == "" {
		return nil, "", ErrDomainNotAllowed
	}

	localPart, err := s.resolveLocalPart(input.Prefix)
	if err != nil {
		return nil, "", err
	}

	address := fmt.Sprintf("%s@%s", localPart, selectedDomain)
	if err := s.emailValidator.ValidateEmail(address); err != nil {
		return nil, "", ErrPrefixInvalid
	}

	plan, err := resolvePlan(input.Plan)
	if err != nil {
		return nil, "", err
	}

	if input.WebhookURL != "" {
		if err := validateWebhookURL(input.WebhookURL); err != nil {
			return nil, "", err
		}
	}

	token, err := generateToken(s.cfg.Address.TokenLength)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()

	record := &domain.Address{
		ID:            uuid.NewString(),
		Address:       address,
		LocalPart:     localPart,
		Domain:        selectedDomain,
		TokenHash:     security.HashSecret(token),
		Plan:          plan,
		Status:        domain.AddressActive,
		WebhookURL:    input.WebhookURL,
		WebhookSecret: input.WebhookSecret,
		MaxMessages:   s.cfg.Address.MaxMessages,
		LastActiveAt:  now,
		CreatedAt:     now,
	}

	if input.RecoveryContact != "" {
		record.RecoveryHash = security.HashSecret(normalizeContact(input.RecoveryContact))
	}

	if err := s.store.SaveAddress(record); err != nil {
		return nil, "", err
	}

	return record, token, nil
}

// Get 根据 ID 获取地址。
func (s *AddressService) Get(id string) (*domain.Address, error) {
	return s.store.GetAddress(id)
}

// Authenticate 根据明文令牌查找对应地址。
//
// 查找顺序：进程内 L1 → Redis L2（如启用）→ 存储，命中后逐层回填。
// 令牌无效或地址已停用时返回 ErrInvalidToken。
func (s *AddressService) Authenticate(token string) (*domain.Address, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	tokenHash := security.HashSecret(token)

	if addr, ok := s.local.Get(tokenHash); ok {
		if addr.Status != domain.AddressActive {
			return nil, ErrInvalidToken
		}
		return addr, nil
	}

	if s.cache != nil {
		if addr, err := s.cache.GetCachedAddressByToken(tokenHash); err == nil {
			if addr.Status != domain.AddressActive {
				return nil, ErrInvalidToken
			}
			s.local.Set(tokenHash, addr)
			return addr, nil
		}
	}

	addr, err := s.store.GetAddressByTokenHash(tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if addr.Status != domain.AddressActive {
		return nil, ErrInvalidToken
	}

	s.local.Set(tokenHash, addr)
	if s.cache != nil {
		_ = s.cache.CacheAddressByToken(tokenHash, addr, redisTokenTTL)
	}

	return addr, nil
}

// RotateToken 为地址签发新令牌，旧令牌立即失效。
func (s *AddressService) RotateToken(id string) (string, error) {
	addr, err := s.store.GetAddress(id)
	if err != nil {
		return "", err
	}

	oldHash := addr.TokenHash
	token, err := generateToken(s.cfg.Address.TokenLength)
	if err != nil {
		return "", err
	}
	addr.TokenHash = security.HashSecret(token)

	if err := s.store.UpdateAddress(addr); err != nil {
		return "", err
	}

	s.local.Invalidate(oldHash)
	if s.cache != nil {
		_ = s.cache.InvalidateAddressToken(oldHash)
	}

	return token, nil
}

// ConfigureWebhook 设置或清除地址的 Webhook 订阅。
// url 为空字符串表示清除订阅。
func (s *AddressService) ConfigureWebhook(id, webhookURL, secret string) (*domain.Address, error) {
	addr, err := s.store.GetAddress(id)
	if err != nil {
		return nil, err
	}

	if webhookURL == "" {
		addr.WebhookURL = ""
		addr.WebhookSecret = ""
	} else {
		if err := validateWebhookURL(webhookURL); err != nil {
			return nil, err
		}
		addr.WebhookURL = webhookURL
		addr.WebhookSecret = secret
	}

	if err := s.store.UpdateAddress(addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// Delete 删除地址，级联删除名下邮件与投递记录。
func (s *AddressService) Delete(id string) error {
	addr, err := s.store.GetAddress(id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAddress(id); err != nil {
		return err
	}

	s.local.Invalidate(addr.TokenHash)
	if s.cache != nil {
		_ = s.cache.InvalidateAddressToken(addr.TokenHash)
	}
	return nil
}

// pickDomain 挑选合法的收件域名。
func (s *AddressService) pickDomain(requested string) string {
	if requested == "" {
		return s.cfg.Address.AllowedDomains[0]
	}
	requested = strings.ToLower(strings.TrimSpace(requested))
	if _, ok := s.domainSet[requested]; ok {
		return requested
	}
	return ""
}

// resolveLocalPart 生成或验证地址前缀。
func (s *AddressService) resolveLocalPart(prefix string) (string, error) {
	if prefix == "" {
		return s.generateRandomLocalPart(), nil
	}
	prefix = strings.ToLower(prefix)
	if err := s.emailValidator.ValidateLocalPart(prefix); err != nil {
		return "", ErrPrefixInvalid
	}
	return prefix, nil
}

// generateRandomLocalPart 生成随机前缀。
func (s *AddressService) generateRandomLocalPart() string {
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return base[:12]
}

// generateToken 生成地址访问令牌。
//
// 令牌是地址唯一的凭据，必须来自加密随机源。
func generateToken(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return token[:length], nil
}

// resolvePlan 校验套餐取值，空值落到免费档。
func resolvePlan(plan domain.PlanTier) (domain.PlanTier, error) {
	switch plan {
	case "":
		return domain.PlanFree, nil
	case domain.PlanFree, domain.PlanTier2, domain.PlanTier3:
		return plan, nil
	default:
		return "", ErrInvalidPlan
	}
}

// validateWebhookURL 校验 Webhook 回调地址。
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidWebhookURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidWebhookURL
	}
	if u.Host == "" {
		return ErrInvalidWebhookURL
	}
	return nil
}

// normalizeContact 归一化恢复联系方式，保证哈希的等值可比性。
func normalizeContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}
