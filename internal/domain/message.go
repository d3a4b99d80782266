package domain

import "time"

// Message 表示一封已入库的入站邮件。
//
// ExpiresAt 在入库时根据地址当时的套餐一次性计算，
// 之后套餐变更不会回溯修改已有邮件的过期时间。
type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AddressID  string    `json:"addressId" gorm:"type:varchar(36);index;not null"`
	From       string    `json:"from" gorm:"column:from_address;type:varchar(255)"`
	FromName   string    `json:"fromName" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	Text       string    `json:"text,omitempty" gorm:"type:text"`
	HTML       string    `json:"html,omitempty" gorm:"type:text"`
	RawHeaders string    `json:"-" gorm:"type:text"`
	IsRead     bool      `json:"isRead" gorm:"default:false;index"`
	IsArchived bool      `json:"isArchived" gorm:"default:false"`
	// 提取结果随邮件原子写入，不做延迟处理。
	OTPCode   *string   `json:"otpCode,omitempty" gorm:"type:varchar(32)"`
	OTPLink   *string   `json:"otpLink,omitempty" gorm:"type:varchar(2000)"`
	Extracted bool      `json:"extracted" gorm:"default:false;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"index"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasOTP 判断邮件是否携带提取成功的验证码或验证链接。
func (m *Message) HasOTP() bool {
	return m.OTPCode != nil || m.OTPLink != nil
}
