package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deltauid-backend-go/internal/client"
	"deltauid-backend-go/internal/model"

	"go.uber.org/zap"
)

var (
	ErrCredentialNotFound = errors.New("导出失败! 请先登录!")
	ErrInvalidCredential  = errors.New("请正确输入ck信息!")
)

// CredentialStore 凭据存储的完整接口
type CredentialStore interface {
	CredentialSink
	GetAll(ctx context.Context) ([]model.Credential, error)
	UpdateCheckStatus(ctx context.Context, id int64, accessToken string, valid bool) error
}

// CredentialService 凭据导出、手动添加与有效性巡检
type CredentialService struct {
	store      CredentialStore
	strategies StrategyFactory
	logger     *zap.Logger

	batchSize  int
	batchPause time.Duration
}

func NewCredentialService(store CredentialStore, strategies StrategyFactory, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		store:      store,
		strategies: strategies,
		logger:     logger,
		batchSize:  5,
		batchPause: 3 * time.Second,
	}
}

// Export 导出用户凭据
func (s *CredentialService) Export(ctx context.Context, botID, userID string) (*model.ExportedCredential, error) {
	cred, err := s.store.Load(ctx, botID, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		s.logger.Warn("[DF] 导出失败: 未登录", zap.String("user_id", userID))
		return nil, ErrCredentialNotFound
	}

	s.logger.Info("[DF] 导出成功", zap.String("user_id", userID))
	return &model.ExportedCredential{
		OpenID:   cred.OpenID,
		Token:    cred.AccessToken,
		Platform: cred.Platform,
	}, nil
}

// AddCredential 手动添加凭据，覆盖该用户已有的凭据
func (s *CredentialService) AddCredential(ctx context.Context, cred *model.Credential) error {
	if cred.BotID == "" || cred.UserID == "" || cred.OpenID == "" || cred.AccessToken == "" {
		return ErrInvalidCredential
	}
	if cred.Platform != model.PlatformQQ && cred.Platform != model.PlatformWeChat {
		return model.ErrUnknownPlatform
	}
	cred.IsValid = true

	if err := s.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.logger.Info("[DF] 添加ck成功", zap.String("user_id", cred.UserID), zap.String("platform", string(cred.Platform)))
	return nil
}

// ParseCredentialText 解析形如
//
//	openid:xxx
//	token:xxx
//	platform:qq
//
// 的多行文本；三项缺一不可
func ParseCredentialText(text string) (openID, token string, platform model.Platform, err error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) <= 2 {
		return "", "", "", ErrInvalidCredential
	}

	var rawPlatform string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "openid:"):
			openID = strings.TrimSpace(strings.TrimPrefix(line, "openid:"))
		case strings.HasPrefix(line, "token:"):
			token = strings.TrimSpace(strings.TrimPrefix(line, "token:"))
		case strings.HasPrefix(line, "platform:"):
			rawPlatform = strings.TrimSpace(strings.TrimPrefix(line, "platform:"))
		}
	}
	if openID == "" || token == "" || rawPlatform == "" {
		return "", "", "", ErrInvalidCredential
	}

	platform, err = model.ParsePlatform(rawPlatform)
	if err != nil {
		return "", "", "", err
	}
	return openID, token, platform, nil
}

// RefreshResult 巡检统计
type RefreshResult struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Skipped int `json:"skipped"`
}

// RefreshAll 逐个查询角色信息以检查凭据是否仍然有效。
// 后端拒绝记为失效，网络故障跳过不记录。
func (s *CredentialService) RefreshAll(ctx context.Context) (*RefreshResult, error) {
	s.logger.Info("🔄 开始检查所有凭据有效性")

	creds, err := s.store.GetAll(ctx)
	if err != nil {
		s.logger.Error("获取凭据列表失败", zap.Error(err))
		return nil, err
	}
	result := &RefreshResult{Total: len(creds)}
	if len(creds) == 0 {
		s.logger.Info("💫 无凭据需要检查")
		return result, nil
	}

	for i, cred := range creds {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		valid, checked := s.check(ctx, cred)
		switch {
		case !checked:
			result.Skipped++
		case valid:
			result.Valid++
		default:
			result.Invalid++
		}
		if checked {
			if err := s.store.UpdateCheckStatus(ctx, cred.ID, cred.AccessToken, valid); err != nil {
				s.logger.Warn("记录检查结果失败", zap.Int64("id", cred.ID), zap.Error(err))
			}
		}

		// 每批最多 batchSize 个，批间暂停
		if s.batchSize > 0 && (i+1)%s.batchSize == 0 && i < len(creds)-1 && s.batchPause > 0 {
			s.logger.Debug("⏸️ 批次间隔(凭据检查)", zap.Duration("pause", s.batchPause))
			if err := sleepContext(ctx, s.batchPause); err != nil {
				return result, err
			}
		}
	}

	s.logger.Info("✅ 凭据有效性检查完成",
		zap.Int("total", result.Total),
		zap.Int("valid", result.Valid),
		zap.Int("invalid", result.Invalid),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *CredentialService) check(ctx context.Context, cred model.Credential) (valid, checked bool) {
	strategy, err := s.strategies(cred.Platform)
	if err != nil {
		s.logger.Warn("凭据平台未知", zap.Int64("id", cred.ID), zap.String("platform", string(cred.Platform)))
		return false, true
	}

	_, err = strategy.FetchPlayerInfo(ctx, client.TokenPair{AccessToken: cred.AccessToken, OpenID: cred.OpenID})
	if err == nil {
		return true, true
	}
	if be, ok := client.AsBackendError(err); ok {
		s.logger.Info("凭据已失效", zap.Int64("id", cred.ID), zap.String("user_id", cred.UserID), zap.String("reason", be.Message))
		return false, true
	}
	s.logger.Debug("凭据检查失败(网络)", zap.Int64("id", cred.ID), zap.Error(err))
	return false, false
}
