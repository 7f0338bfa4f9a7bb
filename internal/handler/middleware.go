package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CORSMiddleware CORS中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 管理令牌验证中间件，未配置令牌时拒绝所有请求
func AuthMiddleware(adminToken string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			ErrorResponse(c, http.StatusServiceUnavailable, false, "未配置管理令牌")
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			ErrorResponse(c, http.StatusUnauthorized, false, "需要提供 Authorization 头")
			c.Abort()
			return
		}

		// 提取Bearer token
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			ErrorResponse(c, http.StatusUnauthorized, false, "Authorization 头格式错误")
			c.Abort()
			return
		}

		token := tokenParts[1]
		if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			logger.Warn("管理令牌验证失败", zap.String("path", c.FullPath()), zap.String("client_ip", c.ClientIP()))
			ErrorResponse(c, http.StatusUnauthorized, false, "Token无效")
			c.Abort()
			return
		}

		c.Next()
	}
}

// ErrorResponse 统一错误响应格式
func ErrorResponse(c *gin.Context, statusCode int, success bool, error string) {
	c.JSON(statusCode, gin.H{
		"success": success,
		"error":   error,
	})
}

// SuccessResponse 统一成功响应格式
func SuccessResponse(c *gin.Context, data interface{}) {
	response := gin.H{
		"success": true,
	}

	if data != nil {
		response["data"] = data
	}

	c.JSON(http.StatusOK, response)
}

// SuccessResponseWithMessage 带消息的成功响应
func SuccessResponseWithMessage(c *gin.Context, message string, data interface{}) {
	response := gin.H{
		"success": true,
		"message": message,
	}

	if data != nil {
		response["data"] = data
	}

	c.JSON(http.StatusOK, response)
}
