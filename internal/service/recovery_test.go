package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/ratelimit"
	"otpinbox/backend/internal/storage/memory"
)

// captureSender 记录发出的通知，用于断言。
type captureSender struct {
	contacts  []string
	addresses []string
}

func (s *captureSender) SendRecoveryNotice(contact string, address *domain.Address) error {
	s.contacts = append(s.contacts, contact)
	s.addresses = append(s.addresses, address.Address)
	return nil
}

func newRecoveryFixture(t *testing.T) (*RecoveryService, *captureSender, *domain.Address) {
	t.Helper()
	store := memory.NewStore()
	addresses := NewAddressService(store, nil, testConfig())
	addr, _, err := addresses.Create(CreateAddressInput{
		Prefix:          "recover-me",
		RecoveryContact: "owner@example.com",
	})
	require.NoError(t, err)

	sender := &captureSender{}
	svc := NewRecoveryService(store, ratelimit.NewLimiter(store), sender, testConfig(), nil, zap.NewNop())
	return svc, sender, addr
}

func TestRecoveryRequest(t *testing.T) {
	t.Run("联系方式匹配时发送通知", func(t *testing.T) {
		svc, sender, addr := newRecoveryFixture(t)

		err := svc.Request("1.2.3.4", "Owner@Example.com", addr.Address)

		require.NoError(t, err)
		require.Len(t, sender.contacts, 1)
		assert.Equal(t, "owner@example.com", sender.contacts[0])
		assert.Equal(t, addr.Address, sender.addresses[0])
	})

	t.Run("联系方式不匹配时静默成功", func(t *testing.T) {
		svc, sender, addr := newRecoveryFixture(t)

		err := svc.Request("1.2.3.4", "stranger@example.com", addr.Address)

		require.NoError(t, err)
		assert.Empty(t, sender.contacts)
	})

	t.Run("未知地址静默成功", func(t *testing.T) {
		svc, sender, _ := newRecoveryFixture(t)

		err := svc.Request("1.2.3.4", "owner@example.com", "ghost@otpinbox.dev")

		require.NoError(t, err)
		assert.Empty(t, sender.contacts)
	})

	t.Run("联系方式维度限流", func(t *testing.T) {
		svc, _, addr := newRecoveryFixture(t)

		// 配额 3 次/小时，换不同 IP 和目标绕不过联系方式闸口
		targets := []string{addr.Address, "ghost1@otpinbox.dev", "ghost2@otpinbox.dev"}
		for i, target := range targets {
			err := svc.Request("10.0.0."+string(rune('1'+i)), "owner@example.com", target)
			require.NoError(t, err)
		}

		err := svc.Request("10.9.9.9", "owner@example.com", "ghost3@otpinbox.dev")
		assert.ErrorIs(t, err, ErrTooManyAttempts)
	})

	t.Run("目标地址维度限流", func(t *testing.T) {
		svc, _, addr := newRecoveryFixture(t)

		for i := 0; i < 3; i++ {
			contact := "contact" + string(rune('a'+i)) + "@example.com"
			err := svc.Request("10.0.1."+string(rune('1'+i)), contact, addr.Address)
			require.NoError(t, err)
		}

		err := svc.Request("10.9.8.7", "another@example.com", addr.Address)
		assert.ErrorIs(t, err, ErrTooManyAttempts)
	})

	t.Run("IP维度限流", func(t *testing.T) {
		svc, _, _ := newRecoveryFixture(t)

		// 配额 10 次/小时，不同联系方式与目标避免触发其他闸口
		for i := 0; i < 10; i++ {
			contact := "c" + string(rune('a'+i)) + "@example.com"
			target := "t" + string(rune('a'+i)) + "@otpinbox.dev"
			err := svc.Request("172.16.0.1", contact, target)
			require.NoError(t, err)
		}

		err := svc.Request("172.16.0.1", "final@example.com", "final@otpinbox.dev")
		assert.ErrorIs(t, err, ErrTooManyAttempts)
	})

	t.Run("被拒请求不发送通知", func(t *testing.T) {
		svc, sender, addr := newRecoveryFixture(t)

		for i := 0; i < 3; i++ {
			_ = svc.Request("10.1.1.1", "owner@example.com", addr.Address)
		}
		err := svc.Request("10.1.1.1", "owner@example.com", addr.Address)

		assert.ErrorIs(t, err, ErrTooManyAttempts)
		assert.Len(t, sender.contacts, 3, "只有放行的请求发出通知")
	})
}
