package domain

import (
	"time"
)

// Address 表示一个收件身份（别名邮箱）。
type Address struct {
	ID           string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address      string        `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	LocalPart    string        `json:"localPart" gorm:"type:varchar(255);uniqueIndex:idx_local_domain"`
	Domain       string        `json:"domain" gorm:"type:varchar(100);uniqueIndex:idx_local_domain;index"`
	TokenHash    string        `json:"-" gorm:"type:varchar(64);index"`
	RecoveryHash string        `json:"-" gorm:"type:varchar(64);index"`
	Plan         PlanTier      `json:"plan" gorm:"type:varchar(16);default:free"`
	Status       AddressStatus `json:"status" gorm:"type:varchar(16);default:active;index"`
	WebhookURL   string        `json:"webhookUrl,omitempty" gorm:"type:varchar(500)"`
	WebhookSecret string       `json:"-" gorm:"type:varchar(255)"`
	// MaxMessages 为 0 时不限制保留数量，超出后按 FIFO 淘汰最旧邮件。
	MaxMessages  int       `json:"maxMessages" gorm:"default:0"`
	MessageCount int       `json:"messageCount" gorm:"default:0"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasWebhook 判断地址是否配置了 Webhook 订阅。
func (a *Address) HasWebhook() bool {
	return a.WebhookURL != ""
}
