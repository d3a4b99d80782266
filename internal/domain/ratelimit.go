package domain

import "time"

// RateLimitEvent 一次被计数的动作。
//
// Key 由调用方自行拼接（IP、恢复联系方式哈希、目标地址等），
// 仅追加写入，超出窗口的条目在下一次同 Key 检查时被惰性清理。
type RateLimitEvent struct {
	ID        uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	Key       string    `json:"key" gorm:"column:scope_key;type:varchar(255);index"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}
