package httptransport

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/storage"
)

type messageResponse struct {
	ID         string    `json:"id"`
	AddressID  string    `json:"addressId"`
	From       string    `json:"from"`
	FromName   string    `json:"fromName,omitempty"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text,omitempty"`
	HTML       string    `json:"html,omitempty"`
	IsRead     bool      `json:"isRead"`
	IsArchived bool      `json:"isArchived"`
	OTPCode    *string   `json:"otpCode,omitempty"`
	OTPLink    *string   `json:"otpLink,omitempty"`
	Extracted  bool      `json:"extracted"`
	ExpiresAt  time.Time `json:"expiresAt"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type messageListResponse struct {
	Items []messageResponse `json:"items"`
	Count int               `json:"count"`
}

// listMessages 返回地址下的全部邮件，按接收时间倒序。
func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.messages.List(c.Param("id"))
	if err != nil {
		if err == storage.ErrAddressNotFound {
			NotFound(c, MsgAddressNotFound)
			return
		}
		InternalError(c, MsgMessageListFailed)
		return
	}

	responses := make([]messageResponse, 0, len(messages))
	for i := range messages {
		responses = append(responses, toMessageResponse(&messages[i]))
	}

	Success(c, messageListResponse{
		Items: responses,
		Count: len(responses),
	})
}

// getMessage 查看单封邮件内容。
func (h *Handler) getMessage(c *gin.Context) {
	message, err := h.messages.Get(c.Param("id"), c.Param("messageId"))
	if err != nil {
		if err == storage.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, toMessageResponse(message))
}

// markMessageRead 将指定邮件更新为已读状态。
func (h *Handler) markMessageRead(c *gin.Context) {
	if err := h.messages.MarkRead(c.Param("id"), c.Param("messageId")); err != nil {
		if err == storage.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
		} else {
			InternalError(c, MsgMessageMarkReadFailed)
		}
		return
	}
	NoContent(c)
}

// archiveMessage 归档指定邮件。
func (h *Handler) archiveMessage(c *gin.Context) {
	if err := h.messages.Archive(c.Param("id"), c.Param("messageId")); err != nil {
		if err == storage.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
		} else {
			InternalError(c, MsgMessageArchiveFailed)
		}
		return
	}
	NoContent(c)
}

// deleteMessage 删除指定邮件。
func (h *Handler) deleteMessage(c *gin.Context) {
	if err := h.messages.Delete(c.Param("id"), c.Param("messageId")); err != nil {
		if err == storage.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
		} else {
			InternalError(c, MsgMessageDeleteFailed)
		}
		return
	}
	NoContent(c)
}

// waitForOTP 长轮询等待验证码到达。
//
// timeout_ms 最长 30000，since 过滤早于该时间的邮件，
// from 对发件人做大小写敏感的子串匹配。
func (h *Handler) waitForOTP(c *gin.Context) {
	timeout := 30 * time.Second
	if raw := c.Query("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			BadRequest(c, MsgInvalidTimeout)
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequest(c, MsgInvalidSince)
			return
		}
		since = &t
	}

	// 轮询不绑定请求上下文，客户端断开不会中断等待
	result, err := h.otp.WaitForOTP(context.Background(), c.Param("id"), timeout, since, c.Query("from"))
	if err != nil {
		InternalError(c, MsgOTPWaitFailed)
		return
	}

	Success(c, result)
}

// toMessageResponse 转换邮件实体为响应体。
func toMessageResponse(message *domain.Message) messageResponse {
	return messageResponse{
		ID:         message.ID,
		AddressID:  message.AddressID,
		From:       message.From,
		FromName:   message.FromName,
		Subject:    message.Subject,
		Text:       message.Text,
		HTML:       message.HTML,
		IsRead:     message.IsRead,
		IsArchived: message.IsArchived,
		OTPCode:    message.OTPCode,
		OTPLink:    message.OTPLink,
		Extracted:  message.Extracted,
		ExpiresAt:  message.ExpiresAt,
		ReceivedAt: message.ReceivedAt,
	}
}
