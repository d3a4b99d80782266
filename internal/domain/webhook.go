package domain

import "time"

// WebhookEventType Webhook 事件类型
type WebhookEventType string

const (
	WebhookEventEmailReceived WebhookEventType = "email.received" // 新邮件到达
)

// WebhookEvent Webhook 事件数据，序列化为 JSON 后投递。
type WebhookEvent struct {
	Event     WebhookEventType `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	Address   string           `json:"address"`
	Email     EmailEventData   `json:"email"`
}

// EmailEventData 事件中携带的邮件摘要。
type EmailEventData struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	FromName   string    `json:"from_name"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	HasOTP     bool      `json:"has_otp"`
	OTPCode    *string   `json:"otp_code"`
	OTPLink    *string   `json:"otp_link"`
}

// NewEmailReceivedEvent 根据入库邮件构造投递事件。
func NewEmailReceivedEvent(address *Address, message *Message) WebhookEvent {
	return WebhookEvent{
		Event:     WebhookEventEmailReceived,
		Timestamp: time.Now().UTC(),
		Address:   address.Address,
		Email: EmailEventData{
			ID:         message.ID,
			From:       message.From,
			FromName:   message.FromName,
			Subject:    message.Subject,
			ReceivedAt: message.ReceivedAt,
			HasOTP:     message.HasOTP(),
			OTPCode:    message.OTPCode,
			OTPLink:    message.OTPLink,
		},
	}
}

// WebhookDeliveryRecord 一次 Webhook 投递尝试的记录。
//
// 无论成败都会写入；网络不可达时 StatusCode 记为 0。
// 当前设计不做自动重试，Attempts 恒为 1，字段保留给多次尝试的扩展。
type WebhookDeliveryRecord struct {
	ID         string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AddressID  string           `json:"addressId" gorm:"type:varchar(36);index;not null"`
	Event      WebhookEventType `json:"event" gorm:"type:varchar(32)"`
	Payload    string           `json:"payload" gorm:"type:text"`
	StatusCode int              `json:"statusCode"`
	Success    bool             `json:"success"`
	Error      string           `json:"error" gorm:"type:text"`
	Attempts   int              `json:"attempts" gorm:"default:1"`
	Duration   int64            `json:"duration"` // 请求耗时（毫秒）
	CreatedAt  time.Time        `json:"createdAt" gorm:"index"`
}
