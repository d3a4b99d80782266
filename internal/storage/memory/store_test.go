package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/storage"
)

func newTestAddress(id string) *domain.Address {
	return &domain.Address{
		ID:        id,
		Address:   id + "@otp.box",
		LocalPart: id,
		Domain:    "otp.box",
		TokenHash: "hash-" + id,
		Plan:      domain.PlanFree,
		Status:    domain.AddressActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestStore_AddressLifecycle(t *testing.T) {
	store := NewStore()
	addr := newTestAddress("alice")
	require.NoError(t, store.SaveAddress(addr))

	t.Run("按ID与地址查询", func(t *testing.T) {
		got, err := store.GetAddress("alice")
		assert.NoError(t, err)
		assert.Equal(t, "alice@otp.box", got.Address)

		got, err = store.GetAddressByAddress("alice@otp.box")
		assert.NoError(t, err)
		assert.Equal(t, "alice", got.ID)
	})

	t.Run("按令牌哈希查询", func(t *testing.T) {
		got, err := store.GetAddressByTokenHash("hash-alice")
		assert.NoError(t, err)
		assert.Equal(t, "alice", got.ID)
	})

	t.Run("令牌轮换后旧哈希失效", func(t *testing.T) {
		updated := *addr
		updated.TokenHash = "hash-alice-2"
		require.NoError(t, store.UpdateAddress(&updated))

		_, err := store.GetAddressByTokenHash("hash-alice")
		assert.ErrorIs(t, err, storage.ErrAddressNotFound)

		got, err := store.GetAddressByTokenHash("hash-alice-2")
		assert.NoError(t, err)
		assert.Equal(t, "alice", got.ID)
	})

	t.Run("删除地址级联清理邮件", func(t *testing.T) {
		require.NoError(t, store.SaveMessage(&domain.Message{
			ID: "m1", AddressID: "alice", ReceivedAt: time.Now(),
		}))
		require.NoError(t, store.DeleteAddress("alice"))

		_, err := store.GetAddress("alice")
		assert.ErrorIs(t, err, storage.ErrAddressNotFound)
		_, err = store.GetMessage("alice", "m1")
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	})
}

func TestStore_DeleteOldestBeyondCap(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveAddress(newTestAddress("bob")))

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveMessage(&domain.Message{
			ID:         fmt.Sprintf("m%d", i),
			AddressID:  "bob",
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, store.IncrementMessageCount("bob", 5))

	removed, err := store.DeleteOldestBeyondCap("bob", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// 计数调整归服务层负责，存储层淘汰不改计数
	addr, err := store.GetAddress("bob")
	require.NoError(t, err)
	assert.Equal(t, 5, addr.MessageCount)

	// 最早的两封被淘汰，最新的保留
	_, err = store.GetMessage("bob", "m0")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	_, err = store.GetMessage("bob", "m1")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	_, err = store.GetMessage("bob", "m4")
	assert.NoError(t, err)
}

func TestStore_DeleteExpiredMessages(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveAddress(newTestAddress("carol")))

	now := time.Now().UTC()
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID: "old", AddressID: "carol", ReceivedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID: "fresh", AddressID: "carol", ReceivedAt: now, ExpiresAt: now.Add(7 * 24 * time.Hour),
	}))

	count, err := store.DeleteExpiredMessages(now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.GetMessage("carol", "old")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	_, err = store.GetMessage("carol", "fresh")
	assert.NoError(t, err)
}

func TestStore_LatestExtractedMessage(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveAddress(newTestAddress("dave")))

	now := time.Now().UTC()
	code := "482913"
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID: "plain", AddressID: "dave", From: "news@example.com",
		ReceivedAt: now.Add(-2 * time.Minute),
	}))
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID: "otp1", AddressID: "dave", From: "no-reply@github.com",
		OTPCode: &code, Extracted: true,
		ReceivedAt: now.Add(-time.Minute),
	}))

	t.Run("返回最近一封提取成功的邮件", func(t *testing.T) {
		got, err := store.LatestExtractedMessage("dave", nil, "")
		require.NoError(t, err)
		assert.Equal(t, "otp1", got.ID)
	})

	t.Run("发件人过滤大小写敏感", func(t *testing.T) {
		_, err := store.LatestExtractedMessage("dave", nil, "GitHub")
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)

		got, err := store.LatestExtractedMessage("dave", nil, "github")
		require.NoError(t, err)
		assert.Equal(t, "otp1", got.ID)
	})

	t.Run("since 过滤排除较早的邮件", func(t *testing.T) {
		since := now
		_, err := store.LatestExtractedMessage("dave", &since, "")
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	})
}

func TestStore_RateLimitEvents(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.InsertRateLimitEvent("ip:1.2.3.4", now.Add(-2*time.Hour)))
	require.NoError(t, store.InsertRateLimitEvent("ip:1.2.3.4", now))

	count, err := store.CountRateLimitEvents("ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.DeleteRateLimitEventsBefore("ip:1.2.3.4", now.Add(-time.Hour)))
	count, err = store.CountRateLimitEvents("ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_Deliveries(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.RecordDelivery(&domain.WebhookDeliveryRecord{
		ID: "d1", AddressID: "a", Success: false, StatusCode: 500, Attempts: 1,
		CreatedAt: now.Add(-8 * 24 * time.Hour),
	}))
	require.NoError(t, store.RecordDelivery(&domain.WebhookDeliveryRecord{
		ID: "d2", AddressID: "a", Success: true, StatusCode: 200, Attempts: 1,
		CreatedAt: now,
	}))

	records, err := store.ListDeliveries("a", 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "d2", records[0].ID) // 倒序

	count, err := store.DeleteDeliveriesBefore(now.Add(-7 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
