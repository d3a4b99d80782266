package httptransport

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/service"
	"otpinbox/backend/internal/storage"
)

type configureWebhookRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

type deliveryResponse struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	StatusCode int       `json:"statusCode"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	Duration   int64     `json:"duration"`
	CreatedAt  time.Time `json:"createdAt"`
}

type deliveryListResponse struct {
	Items []deliveryResponse `json:"items"`
	Count int                `json:"count"`
}

// configureWebhook 设置或清除地址的 Webhook 订阅。
//
// url 为空表示清除订阅，secret 仅在设置 url 时生效。
func (h *Handler) configureWebhook(c *gin.Context) {
	var req configureWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	address, err := h.addresses.ConfigureWebhook(c.Param("id"), req.URL, req.Secret)
	if err != nil {
		switch err {
		case service.ErrInvalidWebhookURL:
			BadRequest(c, GetErrorMessage(err))
		case storage.ErrAddressNotFound:
			NotFound(c, MsgAddressNotFound)
		default:
			InternalError(c, MsgWebhookConfigFailed)
		}
		return
	}

	Success(c, toAddressResponse(address))
}

// listDeliveries 返回地址最近的 Webhook 投递记录。
func (h *Handler) listDeliveries(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		limit = n
	}

	records, err := h.webhooks.ListDeliveries(c.Param("id"), limit)
	if err != nil {
		InternalError(c, MsgDeliveryListFailed)
		return
	}

	responses := make([]deliveryResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toDeliveryResponse(&records[i]))
	}

	Success(c, deliveryListResponse{
		Items: responses,
		Count: len(responses),
	})
}

// toDeliveryResponse 转换投递记录为响应体，不回传原始载荷。
func toDeliveryResponse(record *domain.WebhookDeliveryRecord) deliveryResponse {
	return deliveryResponse{
		ID:         record.ID,
		Event:      string(record.Event),
		StatusCode: record.StatusCode,
		Success:    record.Success,
		Error:      record.Error,
		Attempts:   record.Attempts,
		Duration:   record.Duration,
		CreatedAt:  record.CreatedAt,
	}
}
