package service

import (
	"context"
	"errors"

	"deltauid-backend-go/internal/client"
	"deltauid-backend-go/internal/config"
	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/notifier"

	"go.uber.org/zap"
)

const (
	msgGenericFailure = "登录过程发生错误，请稍后重试"
	msgDropped        = "服务正在重启，本次登录已取消，请稍后重新登录"
)

// StrategyFactory 按平台创建登录策略
type StrategyFactory func(platform model.Platform) (client.PlatformStrategy, error)

// LoginService 组装策略、通知与存储，执行一次完整的扫码登录
type LoginService struct {
	strategies StrategyFactory
	sink       CredentialSink
	notifiers  notifier.Factory
	cfg        config.LoginConfig
	logger     *zap.Logger
	extraOpts  []SessionOption
}

func NewLoginService(
	strategies StrategyFactory,
	sink CredentialSink,
	notifiers notifier.Factory,
	cfg config.LoginConfig,
	logger *zap.Logger,
	opts ...SessionOption,
) *LoginService {
	return &LoginService{
		strategies: strategies,
		sink:       sink,
		notifiers:  notifiers,
		cfg:        cfg,
		logger:     logger,
		extraOpts:  opts,
	}
}

// Login 为目标用户执行扫码登录。
// 后端拒绝等业务失败在 Outcome 中返回；其余故障返回 error，并向用户发送通用提示（ctx 取消除外）。
func (s *LoginService) Login(ctx context.Context, req model.LoginRequest) (*Outcome, error) {
	n := s.notifiers.For(req.Target)

	strategy, err := s.strategies(req.Platform)
	if err != nil {
		n.SendText(ctx, "平台参数错误，请使用QQ或微信")
		return nil, err
	}

	opts := []SessionOption{
		WithMaxAttempts(s.cfg.MaxAttempts),
	}
	if s.cfg.PollInterval > 0 {
		opts = append(opts, WithPollInterval(s.cfg.PollInterval))
	}
	opts = append(opts, s.extraOpts...)

	session := NewLoginSession(strategy, s.sink, n, req.Target, s.logger, opts...)
	outcome, err := session.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Info("登录会话已取消",
				zap.String("user_id", req.Target.UserID),
				zap.String("state", string(session.State())))
			return nil, err
		}
		s.logger.Error("❌ 登录过程发生错误",
			zap.String("platform", string(req.Platform)),
			zap.String("user_id", req.Target.UserID),
			zap.String("state", string(session.State())),
			zap.Error(err))
		n.SendText(ctx, msgGenericFailure)
		return nil, err
	}
	return outcome, nil
}

// NotifyDropped 排队中的登录因服务停止未能执行
func (s *LoginService) NotifyDropped(ctx context.Context, req model.LoginRequest) {
	s.logger.Info("登录请求未执行", zap.String("user_id", req.Target.UserID))
	s.notifiers.For(req.Target).SendText(ctx, msgDropped)
}
