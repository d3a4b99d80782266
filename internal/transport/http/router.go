package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otpinbox/backend/internal/config"
	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/health"
	"otpinbox/backend/internal/middleware"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/ratelimit"
	"otpinbox/backend/internal/service"
	"otpinbox/backend/internal/storage"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	addresses *service.AddressService
	messages  *service.MessageService
	otp       *service.OTPService
	webhooks  *service.WebhookService
	recovery  *service.RecoveryService
	metrics   *monitoring.Metrics
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	AddressService  *service.AddressService
	MessageService  *service.MessageService
	OTPService      *service.OTPService
	WebhookService  *service.WebhookService
	RecoveryService *service.RecoveryService
	RateLimiter     *ratelimit.Limiter
	Metrics         *monitoring.Metrics
	Health          *health.HealthChecker
	Store           storage.Store
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// 入站邮件走 SMTP，API 请求体不需要很大
	router.Use(middleware.BodySizeLimit(1 * 1024 * 1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Address-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		addresses: deps.AddressService,
		messages:  deps.MessageService,
		otp:       deps.OTPService,
		webhooks:  deps.WebhookService,
		recovery:  deps.RecoveryService,
		metrics:   deps.Metrics,
	}

	addressAuth := middleware.NewAddressAuth(deps.AddressService)
	createLimit := middleware.IPRateLimit(deps.RateLimiter, "address_create",
		deps.Config.RateLimit.CreatePerHour, time.Hour, deps.Metrics, deps.Logger)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// V1 API
	v1 := router.Group("/api/v1")
	{
		// ========== Address Routes ==========
		addressRoutes := v1.Group("/addresses")
		{
			// 创建地址按来源 IP 限流，令牌仅在创建响应中出现一次
			addressRoutes.POST("", createLimit, handler.createAddress)

			// 需要地址令牌的端点
			addressRoutes.GET("/:id", addressAuth.RequireToken(), handler.getAddress)
			addressRoutes.DELETE("/:id", addressAuth.RequireToken(), handler.deleteAddress)
			addressRoutes.POST("/:id/token/rotate", addressAuth.RequireToken(), handler.rotateToken)

			// 邮件相关端点（需要地址令牌）
			addressRoutes.GET("/:id/messages", addressAuth.RequireToken(), handler.listMessages)
			addressRoutes.GET("/:id/messages/:messageId", addressAuth.RequireToken(), handler.getMessage)
			addressRoutes.POST("/:id/messages/:messageId/read", addressAuth.RequireToken(), handler.markMessageRead)
			addressRoutes.POST("/:id/messages/:messageId/archive", addressAuth.RequireToken(), handler.archiveMessage)
			addressRoutes.DELETE("/:id/messages/:messageId", addressAuth.RequireToken(), handler.deleteMessage)

			// 验证码长轮询端点
			addressRoutes.GET("/:id/otp/wait", addressAuth.RequireToken(), handler.waitForOTP)

			// Webhook 配置与投递记录
			addressRoutes.PUT("/:id/webhook", addressAuth.RequireToken(), handler.configureWebhook)
			addressRoutes.GET("/:id/webhook/deliveries", addressAuth.RequireToken(), handler.listDeliveries)
		}

		// ========== Recovery Routes ==========
		// 找回请求不需要令牌，按 IP/联系方式/目标地址三层限流
		v1.POST("/recovery", handler.requestRecovery)
	}

	return router
}

type createAddressRequest struct {
	Prefix          string `json:"prefix"`
	Domain          string `json:"domain"`
	Plan            string `json:"plan"`
	RecoveryContact string `json:"recoveryContact"`
	WebhookURL      string `json:"webhookUrl"`
	WebhookSecret   string `json:"webhookSecret"`
}

type addressResponse struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	LocalPart    string    `json:"localPart"`
	Domain       string    `json:"domain"`
	Plan         string    `json:"plan"`
	Status       string    `json:"status"`
	WebhookURL   string    `json:"webhookUrl,omitempty"`
	MessageCount int       `json:"messageCount"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
	// Token 只在创建和重置令牌的响应中返回
	Token string `json:"token,omitempty"`
}

// createAddress 创建收件地址，明文令牌只在本次响应中出现。
func (h *Handler) createAddress(c *gin.Context) {
	var req createAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	address, token, err := h.addresses.Create(service.CreateAddressInput{
		Prefix:          req.Prefix,
		Domain:          req.Domain,
		Plan:            domain.PlanTier(req.Plan),
		RecoveryContact: req.RecoveryContact,
		WebhookURL:      req.WebhookURL,
		WebhookSecret:   req.WebhookSecret,
	})
	if err != nil {
		switch err {
		case service.ErrDomainNotAllowed, service.ErrPrefixInvalid,
			service.ErrInvalidPlan, service.ErrInvalidWebhookURL:
			BadRequest(c, GetErrorMessage(err))
		case storage.ErrAddressExists:
			Conflict(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgAddressCreateFailed)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.AddressesCreated.Inc()
	}

	resp := toAddressResponse(address)
	resp.Token = token
	Created(c, resp)
}

// getAddress 返回已认证地址的详情。
func (h *Handler) getAddress(c *gin.Context) {
	// address 已经由中间件验证并存储在上下文中
	address, ok := middleware.AddressFromContext(c)
	if !ok {
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, toAddressResponse(address))
}

// deleteAddress 删除地址及其全部邮件与投递记录。
func (h *Handler) deleteAddress(c *gin.Context) {
	if err := h.addresses.Delete(c.Param("id")); err != nil {
		if err == storage.ErrAddressNotFound {
			NotFound(c, MsgAddressNotFound)
		} else {
			InternalError(c, MsgAddressDeleteFailed)
		}
		return
	}
	if h.metrics != nil {
		h.metrics.AddressesDeleted.Inc()
	}
	NoContent(c)
}

// rotateToken 重置访问令牌，旧令牌立即失效。
func (h *Handler) rotateToken(c *gin.Context) {
	token, err := h.addresses.RotateToken(c.Param("id"))
	if err != nil {
		if err == storage.ErrAddressNotFound {
			NotFound(c, MsgAddressNotFound)
		} else {
			InternalError(c, MsgTokenRotateFailed)
		}
		return
	}
	if h.metrics != nil {
		h.metrics.TokensRotated.Inc()
	}
	Success(c, gin.H{"token": token})
}

// toAddressResponse 转换实体为响应体。
func toAddressResponse(address *domain.Address) addressResponse {
	return addressResponse{
		ID:           address.ID,
		Address:      address.Address,
		LocalPart:    address.LocalPart,
		Domain:       address.Domain,
		Plan:         string(address.Plan),
		Status:       string(address.Status),
		WebhookURL:   address.WebhookURL,
		MessageCount: address.MessageCount,
		LastActiveAt: address.LastActiveAt,
		CreatedAt:    address.CreatedAt,
	}
}
