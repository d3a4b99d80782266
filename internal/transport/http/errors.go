package httptransport

import (
	"otpinbox/backend/internal/service"
	"otpinbox/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// Address 错误
	service.ErrDomainNotAllowed:  "域名不在允许列表中",
	service.ErrPrefixInvalid:     "地址前缀格式无效",
	service.ErrInvalidPlan:       "未知的套餐类型",
	service.ErrInvalidWebhookURL: "Webhook 地址无效，仅支持 http/https",
	storage.ErrAddressNotFound:   "地址不存在",
	storage.ErrAddressExists:     "地址已被占用",

	// Message 错误
	storage.ErrMessageNotFound: "邮件不存在",

	// Recovery 错误
	service.ErrTooManyAttempts: "找回请求过于频繁，请稍后重试",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgInvalidTimeout = "等待超时参数无效"
	MsgInvalidSince   = "since 参数需要 RFC3339 格式"

	// 地址相关
	MsgAddressCreateFailed = "创建地址失败"
	MsgAddressNotFound     = "地址不存在"
	MsgAddressDeleteFailed = "删除地址失败"
	MsgTokenRotateFailed   = "重置令牌失败"

	// 邮件相关
	MsgMessageNotFound       = "邮件不存在"
	MsgMessageListFailed     = "获取邮件列表失败"
	MsgMessageMarkReadFailed = "标记已读失败"
	MsgMessageArchiveFailed  = "归档邮件失败"
	MsgMessageDeleteFailed   = "删除邮件失败"

	// OTP 相关
	MsgOTPWaitFailed = "等待验证码失败"

	// Webhook 相关
	MsgWebhookConfigFailed = "配置 Webhook 失败"
	MsgDeliveryListFailed  = "获取投递记录失败"

	// 找回相关
	MsgRecoveryFailed = "提交找回请求失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
