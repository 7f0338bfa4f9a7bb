package handler

import (
	"net/http"
	"time"

	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/service"
	"deltauid-backend-go/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

const verifiedCredentialKey = "verified_credential"

// addCredentialRequest 手动添加凭据；可直接填写字段，也可提交 openid:/token:/platform: 多行文本
type addCredentialRequest struct {
	BotID     string `json:"bot_id"`
	UserID    string `json:"user_id"`
	GroupID   string `json:"group_id"`
	OpenID    string `json:"openid"`
	Token     string `json:"token"`
	Platform  string `json:"platform"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Sign      string `json:"sign"`
}

func (r *addCredentialRequest) credential() (*model.Credential, error) {
	cred := &model.Credential{
		BotID:       r.BotID,
		UserID:      r.UserID,
		GroupID:     r.GroupID,
		OpenID:      r.OpenID,
		AccessToken: r.Token,
	}
	if r.Text != "" {
		openID, token, platform, err := service.ParseCredentialText(r.Text)
		if err != nil {
			return nil, err
		}
		cred.OpenID, cred.AccessToken, cred.Platform = openID, token, platform
		return cred, nil
	}

	platform, err := model.ParsePlatform(r.Platform)
	if err != nil {
		return nil, err
	}
	cred.Platform = platform
	return cred, nil
}

// SignVerificationMiddleware 签名验证中间件（专用于添加凭据接口）
func SignVerificationMiddleware(salt string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request addCredentialRequest

		// 保留请求体供后续handler读取
		if err := c.ShouldBindBodyWith(&request, binding.JSON); err != nil {
			logger.Warn("签名验证：请求格式错误", zap.Error(err))
			ErrorResponse(c, http.StatusBadRequest, false, "请求格式错误，缺少必要的签名参数")
			c.Abort()
			return
		}

		cred, err := request.credential()
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, false, err.Error())
			c.Abort()
			return
		}

		if cred.OpenID == "" || request.UserID == "" || request.Timestamp == "" || request.Sign == "" {
			logger.Warn("签名验证：缺少必要参数",
				zap.String("user_id", request.UserID),
				zap.String("timestamp", request.Timestamp))
			ErrorResponse(c, http.StatusBadRequest, false, "openid、user_id、时间戳和签名不能为空")
			c.Abort()
			return
		}

		if err := utils.CheckTimestamp(request.Timestamp, time.Now(), utils.SignatureWindow); err != nil {
			logger.Warn("签名验证：时间戳无效",
				zap.String("user_id", request.UserID),
				zap.String("timestamp", request.Timestamp),
				zap.Error(err))
			ErrorResponse(c, http.StatusUnauthorized, false, "签名已过期，请重新生成")
			c.Abort()
			return
		}

		params := utils.CredentialSignParams{
			BotID:     cred.BotID,
			UserID:    cred.UserID,
			GroupID:   cred.GroupID,
			OpenID:    cred.OpenID,
			Token:     cred.AccessToken,
			Platform:  string(cred.Platform),
			Timestamp: request.Timestamp,
		}
		if !utils.VerifyCredentialSign(params, request.Sign, salt) {
			logger.Warn("签名验证失败",
				zap.String("user_id", request.UserID),
				zap.String("timestamp", request.Timestamp),
				zap.String("provided_sign", request.Sign))
			ErrorResponse(c, http.StatusUnauthorized, false, "签名验证失败")
			c.Abort()
			return
		}

		logger.Info("签名验证成功",
			zap.String("user_id", request.UserID),
			zap.String("timestamp", request.Timestamp))

		c.Set(verifiedCredentialKey, cred)
		c.Next()
	}
}
