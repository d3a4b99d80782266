package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/service"
)

// contextAddressKey 上下文中存放已认证地址的键名
const contextAddressKey = "authenticated_address"

// AddressAuth 地址令牌认证中间件
type AddressAuth struct {
	addresses *service.AddressService
}

// NewAddressAuth 创建地址认证中间件
func NewAddressAuth(addresses *service.AddressService) *AddressAuth {
	return &AddressAuth{addresses: addresses}
}

// RequireToken 校验地址令牌并确保令牌对应路径中的地址
func (m *AddressAuth) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing access token",
			})
			c.Abort()
			return
		}

		address, err := m.addresses.Authenticate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		// 路径中的地址 ID 必须与令牌对应的地址一致
		if id := c.Param("id"); id != "" && id != address.ID {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "token does not grant access to this address",
			})
			c.Abort()
			return
		}

		c.Set(contextAddressKey, address)
		c.Next()
	}
}

// AddressFromContext 从上下文取出已认证的地址
func AddressFromContext(c *gin.Context) (*domain.Address, bool) {
	value, exists := c.Get(contextAddressKey)
	if !exists {
		return nil, false
	}
	address, ok := value.(*domain.Address)
	return address, ok
}

// extractToken 依次尝试 Authorization Bearer、X-Address-Token 头和 token 查询参数
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
	}
	if header := c.GetHeader("X-Address-Token"); header != "" {
		return header
	}
	return c.Query("token")
}
