package httptransport

import (
	"github.com/gin-gonic/gin"

	"otpinbox/backend/internal/service"
)

type recoveryRequest struct {
	Contact string `json:"contact" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// requestRecovery 提交地址找回请求。
//
// 为避免探测有效地址，地址不存在或联系方式不匹配时
// 同样返回成功，只有超出限流才返回 429。
func (h *Handler) requestRecovery(c *gin.Context) {
	var req recoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	err := h.recovery.Request(c.ClientIP(), req.Contact, req.Address)
	if err != nil {
		if err == service.ErrTooManyAttempts {
			TooManyRequests(c, GetErrorMessage(err))
		} else {
			InternalError(c, MsgRecoveryFailed)
		}
		return
	}

	Success(c, gin.H{
		"message": "如果该地址存在且联系方式匹配，找回通知已发送",
	})
}
