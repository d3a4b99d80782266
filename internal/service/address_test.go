package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpinbox/backend/internal/config"
	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/security"
	"otpinbox/backend/internal/storage"
	"otpinbox/backend/internal/storage/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Address: config.AddressConfig{
			AllowedDomains: []string{"otpinbox.dev", "inbox.example"},
			MaxMessages:    100,
			TokenLength:    32,
		},
		RateLimit: config.RateLimitConfig{
			CreatePerHour:          10,
			RecoveryIPPerHour:      10,
			RecoveryContactPerHour: 3,
			RecoveryTargetPerHour:  3,
		},
	}
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		token, err := generateToken(32)
		require.NoError(t, err)
		assert.Len(t, token, 32)
		assert.Regexp(t, `^[A-Za-z0-9_-]+$`, token)
		seen[token] = struct{}{}
	}
	// 加密随机源下不应出现重复令牌
	assert.Len(t, seen, 64)
}

func TestAddressServiceCreate(t *testing.T) {
	t.Run("使用随机前缀创建成功", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		addr, token, err := svc.Create(CreateAddressInput{})

		require.NoError(t, err)
		assert.NotEmpty(t, addr.ID)
		assert.True(t, strings.HasSuffix(addr.Address, "@otpinbox.dev"))
		assert.Equal(t, domain.PlanFree, addr.Plan)
		assert.Equal(t, domain.AddressActive, addr.Status)
		assert.Equal(t, 100, addr.MaxMessages)
		assert.Len(t, token, 32)
		// 落库的是哈希而非明文
		assert.Equal(t, security.HashSecret(token), addr.TokenHash)
	})

	t.Run("指定前缀与域名", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		addr, _, err := svc.Create(CreateAddressInput{
			Prefix: "signup-check",
			Domain: "inbox.example",
			Plan:   domain.PlanTier2,
		})

		require.NoError(t, err)
		assert.Equal(t, "signup-check@inbox.example", addr.Address)
		assert.Equal(t, domain.PlanTier2, addr.Plan)
	})

	t.Run("不允许的域名被拒", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		_, _, err := svc.Create(CreateAddressInput{Domain: "evil.example"})

		assert.ErrorIs(t, err, ErrDomainNotAllowed)
	})

	t.Run("非法前缀被拒", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		_, _, err := svc.Create(CreateAddressInput{Prefix: "a"})

		assert.ErrorIs(t, err, ErrPrefixInvalid)
	})

	t.Run("非法套餐被拒", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		_, _, err := svc.Create(CreateAddressInput{Plan: domain.PlanTier("enterprise")})

		assert.ErrorIs(t, err, ErrInvalidPlan)
	})

	t.Run("非法Webhook地址被拒", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		_, _, err := svc.Create(CreateAddressInput{WebhookURL: "ftp://example.com/hook"})

		assert.ErrorIs(t, err, ErrInvalidWebhookURL)
	})

	t.Run("恢复联系方式只存哈希", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		addr, _, err := svc.Create(CreateAddressInput{RecoveryContact: " Bob@Example.COM "})

		require.NoError(t, err)
		assert.Equal(t, security.HashSecret("bob@example.com"), addr.RecoveryHash)
	})

	t.Run("重复地址冲突", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		_, _, err := svc.Create(CreateAddressInput{Prefix: "duplicate"})
		require.NoError(t, err)

		_, _, err = svc.Create(CreateAddressInput{Prefix: "duplicate"})
		assert.ErrorIs(t, err, storage.ErrAddressExists)
	})
}

func TestAddressServiceAuthenticate(t *testing.T) {
	t.Run("有效令牌返回地址", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())
		created, token, err := svc.Create(CreateAddressInput{})
		require.NoError(t, err)

		addr, err := svc.Authenticate(token)

		require.NoError(t, err)
		assert.Equal(t, created.ID, addr.ID)
	})

	t.Run("无效令牌被拒", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		_, err := svc.Authenticate("no-such-token")

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("空令牌被拒", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())

		_, err := svc.Authenticate("")

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("停用地址的令牌被拒", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewAddressService(store, nil, testConfig())
		created, token, err := svc.Create(CreateAddressInput{})
		require.NoError(t, err)

		created.Status = domain.AddressDisabled
		require.NoError(t, store.UpdateAddress(created))

		_, err = svc.Authenticate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAddressServiceRotateToken(t *testing.T) {
	svc := NewAddressService(memory.NewStore(), nil, testConfig())
	created, oldToken, err := svc.Create(CreateAddressInput{})
	require.NoError(t, err)

	newToken, err := svc.RotateToken(created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, newToken)

	// 新令牌生效，旧令牌立即失效
	addr, err := svc.Authenticate(newToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, addr.ID)

	_, err = svc.Authenticate(oldToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAddressServiceConfigureWebhook(t *testing.T) {
	t.Run("设置与清除", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())
		created, _, err := svc.Create(CreateAddressInput{})
		require.NoError(t, err)

		addr, err := svc.ConfigureWebhook(created.ID, "https://hooks.example.com/inbox", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "https://hooks.example.com/inbox", addr.WebhookURL)
		assert.Equal(t, "s3cret", addr.WebhookSecret)
		assert.True(t, addr.HasWebhook())

		addr, err = svc.ConfigureWebhook(created.ID, "", "")
		require.NoError(t, err)
		assert.False(t, addr.HasWebhook())
		assert.Empty(t, addr.WebhookSecret)
	})

	t.Run("非法地址被拒", func(t *testing.T) {
		svc := NewAddressService(memory.NewStore(), nil, testConfig())
		created, _, err := svc.Create(CreateAddressInput{})
		require.NoError(t, err)

		_, err = svc.ConfigureWebhook(created.ID, "not-a-url", "")
		assert.ErrorIs(t, err, ErrInvalidWebhookURL)
	})
}

func TestAddressServiceDelete(t *testing.T) {
	store := memory.NewStore()
	svc := NewAddressService(store, nil, testConfig())
	created, token, err := svc.Create(CreateAddressInput{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(created.ID))

	_, err = store.GetAddress(created.ID)
	assert.ErrorIs(t, err, storage.ErrAddressNotFound)
	_, err = svc.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
