package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/storage/memory"
)

func newIngestFixture(t *testing.T) (*MessageService, *memory.Store, *domain.Address) {
	t.Helper()
	store := memory.NewStore()
	addresses := NewAddressService(store, nil, testConfig())
	addr, _, err := addresses.Create(CreateAddressInput{Prefix: "inbound-test"})
	require.NoError(t, err)
	svc := NewMessageService(store, nil, nil, zap.NewNop())
	return svc, store, addr
}

func rawOTPMail(from, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\nTo: inbound-test@otpinbox.dev\r\nSubject: %s\r\nContent-Type: text/plain\r\n\r\n%s\r\n", from, subject, body))
}

func TestMessageServiceIngest(t *testing.T) {
	t.Run("完整管道入库并提取验证码", func(t *testing.T) {
		svc, store, addr := newIngestFixture(t)

		message, err := svc.Ingest(IngestInput{
			Recipient: addr.Address,
			Raw:       rawOTPMail("GitHub <noreply@github.com>", "Verification code", "Your code is 482913"),
		})

		require.NoError(t, err)
		assert.Equal(t, addr.ID, message.AddressID)
		assert.Equal(t, "noreply@github.com", message.From)
		assert.Equal(t, "GitHub", message.FromName)
		assert.Equal(t, "Verification code", message.Subject)
		require.NotNil(t, message.OTPCode)
		assert.Equal(t, "482913", *message.OTPCode)
		assert.True(t, message.Extracted)

		// 免费档过期时间为收到后 7 天
		assert.Equal(t, message.ReceivedAt.Add(7*24*time.Hour), message.ExpiresAt)

		// 计数与活跃时间已更新
		updated, err := store.GetAddress(addr.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.MessageCount)
		assert.Equal(t, message.ReceivedAt, updated.LastActiveAt)
	})

	t.Run("未命中提取时仍然入库", func(t *testing.T) {
		svc, _, addr := newIngestFixture(t)

		message, err := svc.Ingest(IngestInput{
			Recipient: addr.Address,
			Raw:       rawOTPMail("newsletter@shop.example", "Weekly deals", "Check out our new arrivals"),
		})

		require.NoError(t, err)
		assert.Nil(t, message.OTPCode)
		assert.Nil(t, message.OTPLink)
		assert.False(t, message.Extracted)
	})

	t.Run("收件地址大小写与空白归一化", func(t *testing.T) {
		svc, _, addr := newIngestFixture(t)

		_, err := svc.Ingest(IngestInput{
			Recipient: "  INBOUND-TEST@OTPINBOX.DEV  ",
			Raw:       rawOTPMail("a@b.example", "hi", "hello"),
		})

		require.NoError(t, err)
		msgs, err := svc.List(addr.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})

	t.Run("未知收件人", func(t *testing.T) {
		svc, _, _ := newIngestFixture(t)

		_, err := svc.Ingest(IngestInput{
			Recipient: "nobody@otpinbox.dev",
			Raw:       rawOTPMail("a@b.example", "hi", "hello"),
		})

		assert.ErrorIs(t, err, ErrRecipientUnknown)
	})

	t.Run("停用地址拒收", func(t *testing.T) {
		svc, store, addr := newIngestFixture(t)

		addr.Status = domain.AddressDisabled
		require.NoError(t, store.UpdateAddress(addr))

		_, err := svc.Ingest(IngestInput{
			Recipient: addr.Address,
			Raw:       rawOTPMail("a@b.example", "hi", "hello"),
		})

		assert.ErrorIs(t, err, ErrRecipientDisabled)
	})

	t.Run("超出上限按FIFO淘汰最旧邮件", func(t *testing.T) {
		svc, store, addr := newIngestFixture(t)

		addr.MaxMessages = 2
		require.NoError(t, store.UpdateAddress(addr))

		var ids []string
		for i := 0; i < 3; i++ {
			message, err := svc.Ingest(IngestInput{
				Recipient: addr.Address,
				Raw:       rawOTPMail("a@b.example", fmt.Sprintf("mail %d", i), "hello"),
			})
			require.NoError(t, err)
			ids = append(ids, message.ID)
		}

		msgs, err := svc.List(addr.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		for _, m := range msgs {
			assert.NotEqual(t, ids[0], m.ID, "最旧的邮件应被淘汰")
		}

		updated, err := store.GetAddress(addr.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.MessageCount)
	})
}

func TestMessageServiceDelete(t *testing.T) {
	svc, store, addr := newIngestFixture(t)

	message, err := svc.Ingest(IngestInput{
		Recipient: addr.Address,
		Raw:       rawOTPMail("a@b.example", "hi", "hello"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(addr.ID, message.ID))

	msgs, err := svc.List(addr.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	updated, err := store.GetAddress(addr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.MessageCount)
}

func TestMessageServiceReadFlags(t *testing.T) {
	svc, _, addr := newIngestFixture(t)

	message, err := svc.Ingest(IngestInput{
		Recipient: addr.Address,
		Raw:       rawOTPMail("a@b.example", "hi", "hello"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(addr.ID, message.ID))
	got, err := svc.Get(addr.ID, message.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	require.NoError(t, svc.Archive(addr.ID, message.ID))
	got, err = svc.Get(addr.ID, message.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived)
}
