package handler

import (
	"errors"
	"net/http"

	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoginSubmitter 登录任务提交
type LoginSubmitter interface {
	SubmitLogin(req model.LoginRequest) (int64, error)
	GetStats() map[string]interface{}
}

// LoginHandler 扫码登录处理器
type LoginHandler struct {
	submitter LoginSubmitter
	logger    *zap.Logger
}

func NewLoginHandler(submitter LoginSubmitter, logger *zap.Logger) *LoginHandler {
	return &LoginHandler{
		submitter: submitter,
		logger:    logger,
	}
}

// StartLogin 发起扫码登录，二维码与结果通过机器人推送给用户
// POST /api/login
func (h *LoginHandler) StartLogin(c *gin.Context) {
	var request struct {
		Platform string `json:"platform"`
		BotID    string `json:"bot_id" binding:"required"`
		UserID   string `json:"user_id" binding:"required"`
		GroupID  string `json:"group_id"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		ErrorResponse(c, http.StatusBadRequest, false, "bot_id和user_id不能为空")
		return
	}

	platform, err := model.ParsePlatform(request.Platform)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, false, "平台参数错误，请使用QQ或微信")
		return
	}

	h.logger.Info("📝 收到登录请求",
		zap.String("platform", string(platform)),
		zap.String("bot_id", request.BotID),
		zap.String("user_id", request.UserID))

	jobID, err := h.submitter.SubmitLogin(model.LoginRequest{
		Platform: platform,
		Target: model.LoginTarget{
			BotID:   request.BotID,
			UserID:  request.UserID,
			GroupID: request.GroupID,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDuplicateLogin):
			ErrorResponse(c, http.StatusConflict, false, err.Error())
		case errors.Is(err, worker.ErrQueueFull):
			ErrorResponse(c, http.StatusTooManyRequests, false, err.Error())
		default:
			h.logger.Error("提交登录任务失败", zap.Error(err))
			ErrorResponse(c, http.StatusServiceUnavailable, false, "登录服务不可用")
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "登录已开始，请留意机器人发送的二维码",
		"data": gin.H{
			"job_id":   jobID,
			"platform": platform,
		},
	})
}

// GetStats 登录队列统计
// GET /api/login/stats
func (h *LoginHandler) GetStats(c *gin.Context) {
	SuccessResponse(c, h.submitter.GetStats())
}

func (h *LoginHandler) RegisterRoutes(router *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	login := router.Group("/login")
	{
		login.POST("", authMiddleware, h.StartLogin)
		login.GET("/stats", authMiddleware, h.GetStats)
	}
}
