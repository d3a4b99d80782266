package smtp

import (
	"bytes"
	"testing"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otpinbox/backend/internal/config"
	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/service"
	"otpinbox/backend/internal/storage/memory"
)

func testBackend(t *testing.T) (*Backend, *memory.Store, *domain.Address) {
	t.Helper()
	cfg := &config.Config{
		Address: config.AddressConfig{
			AllowedDomains: []string{"otpinbox.dev"},
			MaxMessages:    100,
			TokenLength:    32,
		},
		SMTP: config.SMTPConfig{
			MaxConnections: 10,
			RatePerSecond:  100,
		},
	}

	store := memory.NewStore()
	addresses := service.NewAddressService(store, nil, cfg)
	addr, _, err := addresses.Create(service.CreateAddressInput{Prefix: "smtp-target"})
	require.NoError(t, err)

	messages := service.NewMessageService(store, nil, nil, zap.NewNop())
	return NewBackend(store, messages, cfg, nil, zap.NewNop()), store, addr
}

func newSession(t *testing.T, b *Backend) gosmtp.Session {
	t.Helper()
	sess, err := b.NewSession(nil)
	require.NoError(t, err)
	return sess
}

func TestSessionRcpt(t *testing.T) {
	t.Run("已存在的地址放行", func(t *testing.T) {
		backend, _, addr := testBackend(t)
		sess := newSession(t, backend)

		err := sess.Rcpt("<"+addr.Address+">", nil)
		assert.NoError(t, err)
	})

	t.Run("收件地址大小写不敏感", func(t *testing.T) {
		backend, _, _ := testBackend(t)
		sess := newSession(t, backend)

		err := sess.Rcpt("SMTP-TARGET@OTPINBOX.DEV", nil)
		assert.NoError(t, err)
	})

	t.Run("非托管域名550拒绝", func(t *testing.T) {
		backend, _, _ := testBackend(t)
		sess := newSession(t, backend)

		err := sess.Rcpt("victim@gmail.com", nil)

		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 550, smtpErr.Code)
	})

	t.Run("托管域名下不存在的地址550拒绝", func(t *testing.T) {
		backend, _, _ := testBackend(t)
		sess := newSession(t, backend)

		err := sess.Rcpt("nobody@otpinbox.dev", nil)

		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 550, smtpErr.Code)
	})

	t.Run("停用地址550拒绝", func(t *testing.T) {
		backend, store, addr := testBackend(t)
		addr.Status = domain.AddressDisabled
		require.NoError(t, store.UpdateAddress(addr))
		sess := newSession(t, backend)

		err := sess.Rcpt(addr.Address, nil)

		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 550, smtpErr.Code)
	})

	t.Run("格式非法501拒绝", func(t *testing.T) {
		backend, _, _ := testBackend(t)
		sess := newSession(t, backend)

		err := sess.Rcpt("not-an-address", nil)

		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 501, smtpErr.Code)
	})
}

func TestSessionData(t *testing.T) {
	backend, store, addr := testBackend(t)
	sess := newSession(t, backend)

	require.NoError(t, sess.Mail("noreply@github.com", nil))
	require.NoError(t, sess.Rcpt(addr.Address, nil))

	raw := "From: GitHub <noreply@github.com>\r\n" +
		"To: " + addr.Address + "\r\n" +
		"Subject: Verification code\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Your code is 482913\r\n"
	require.NoError(t, sess.Data(bytes.NewReader([]byte(raw))))

	msgs, err := store.ListMessages(addr.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "noreply@github.com", msgs[0].From)
	require.NotNil(t, msgs[0].OTPCode)
	assert.Equal(t, "482913", *msgs[0].OTPCode)
}

func TestConnectionLimiter(t *testing.T) {
	t.Run("并发上限", func(t *testing.T) {
		limiter := NewConnectionLimiter(2, 1000)

		assert.True(t, limiter.Acquire())
		assert.True(t, limiter.Acquire())
		assert.False(t, limiter.Acquire())

		limiter.Release()
		assert.True(t, limiter.Acquire())
		assert.Equal(t, 2, limiter.Current())
	})

	t.Run("超出配额的会话被拒", func(t *testing.T) {
		backend, _, _ := testBackend(t)
		backend.limiter = NewConnectionLimiter(1, 1000)

		_, err := backend.NewSession(nil)
		require.NoError(t, err)

		_, err = backend.NewSession(nil)
		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 421, smtpErr.Code)
	})
}
