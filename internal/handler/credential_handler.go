package handler

import (
	"context"
	"errors"
	"net/http"

	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CredentialManager 凭据管理
type CredentialManager interface {
	Export(ctx context.Context, botID, userID string) (*model.ExportedCredential, error)
	AddCredential(ctx context.Context, cred *model.Credential) error
	RefreshAll(ctx context.Context) (*service.RefreshResult, error)
}

// CredentialHandler 凭据处理器
type CredentialHandler struct {
	credentials CredentialManager
	signSalt    string
	logger      *zap.Logger
}

func NewCredentialHandler(credentials CredentialManager, signSalt string, logger *zap.Logger) *CredentialHandler {
	return &CredentialHandler{
		credentials: credentials,
		signSalt:    signSalt,
		logger:      logger,
	}
}

// ExportCredential 导出用户凭据
// GET /api/credentials/:bot_id/:user_id
func (h *CredentialHandler) ExportCredential(c *gin.Context) {
	botID, userID := c.Param("bot_id"), c.Param("user_id")

	exported, err := h.credentials.Export(c.Request.Context(), botID, userID)
	if err != nil {
		if errors.Is(err, service.ErrCredentialNotFound) {
			ErrorResponse(c, http.StatusNotFound, false, err.Error())
			return
		}
		h.logger.Error("导出凭据失败", zap.Error(err))
		ErrorResponse(c, http.StatusInternalServerError, false, "导出凭据失败")
		return
	}

	SuccessResponse(c, exported)
}

// AddCredential 手动添加凭据，需先通过签名验证
// POST /api/credentials
func (h *CredentialHandler) AddCredential(c *gin.Context) {
	value, ok := c.Get(verifiedCredentialKey)
	cred, _ := value.(*model.Credential)
	if !ok || cred == nil {
		ErrorResponse(c, http.StatusBadRequest, false, "请正确输入ck信息!")
		return
	}

	if err := h.credentials.AddCredential(c.Request.Context(), cred); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredential), errors.Is(err, model.ErrUnknownPlatform):
			ErrorResponse(c, http.StatusBadRequest, false, err.Error())
		default:
			h.logger.Error("添加凭据失败", zap.Error(err))
			ErrorResponse(c, http.StatusInternalServerError, false, "添加凭据失败")
		}
		return
	}

	SuccessResponseWithMessage(c, "添加ck成功!", gin.H{
		"user_id":  cred.UserID,
		"platform": cred.Platform,
	})
}

// RefreshCredentials 立即检查所有凭据有效性
// POST /api/credentials/refresh
func (h *CredentialHandler) RefreshCredentials(c *gin.Context) {
	result, err := h.credentials.RefreshAll(c.Request.Context())
	if err != nil {
		h.logger.Error("凭据有效性检查失败", zap.Error(err))
		ErrorResponse(c, http.StatusInternalServerError, false, "凭据有效性检查失败")
		return
	}

	SuccessResponse(c, result)
}

func (h *CredentialHandler) RegisterRoutes(router *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	credentials := router.Group("/credentials")
	{
		// 添加凭据（签名验证）
		credentials.POST("", SignVerificationMiddleware(h.signSalt, h.logger), h.AddCredential)

		// 立即检查（需要管理员权限）
		credentials.POST("/refresh", authMiddleware, h.RefreshCredentials)

		// 导出（需要管理员权限）
		credentials.GET("/:bot_id/:user_id", authMiddleware, h.ExportCredential)
	}
}
