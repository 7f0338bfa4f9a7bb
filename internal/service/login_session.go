package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deltauid-backend-go/internal/client"
	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/notifier"
	"deltauid-backend-go/internal/utils"

	"go.uber.org/zap"
)

// State 登录会话状态
type State string

const (
	StateInit              State = "init"
	StateAwaitingChallenge State = "awaiting_challenge"
	StatePolling           State = "polling"
	StateExchanging        State = "exchanging"
	StateBound             State = "bound"

	StateChallengeFailed State = "challenge_failed"
	StateRejected        State = "rejected"
	StateTimedOut        State = "timed_out"
	StateBindFailed      State = "bind_failed"
	StateInfoFetchFailed State = "info_fetch_failed"
)

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	switch s {
	case StateBound, StateChallengeFailed, StateRejected, StateTimedOut, StateBindFailed, StateInfoFetchFailed:
		return true
	}
	return false
}

// TimeoutCause 超时来源，仅用于日志区分，用户看到的提示相同
type TimeoutCause string

const (
	TimeoutCauseBackend TimeoutCause = "backend"
	TimeoutCauseBudget  TimeoutCause = "budget"
)

const (
	DefaultPollInterval = 500 * time.Millisecond

	msgTimeout        = "登录超时，请重新尝试"
	msgTransportFault = "网络请求失败"
	successTemplate   = "登录成功，角色名：%s，现金：%s\n登录有效期60天，在小程序登录会使这里的登录状态失效"
)

// ErrPersistence 凭据存储不可用
var ErrPersistence = errors.New("凭据保存失败")

// CredentialSink 凭据持久化
type CredentialSink interface {
	Save(ctx context.Context, cred *model.Credential) error
	Load(ctx context.Context, botID, userID string) (*model.Credential, error)
}

// Outcome 登录会话的结果；所有后端返回的失败都以 Outcome 表示
type Outcome struct {
	State        State
	Credential   *model.Credential
	Player       *model.PlayerInfo
	Reason       string
	TimeoutCause TimeoutCause
	Attempts     int
}

// Success 是否登录并绑定成功
func (o *Outcome) Success() bool {
	return o != nil && o.State == StateBound
}

// Sleeper 轮询间隔等待，ctx 取消时提前返回
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LoginSession 单次扫码登录的状态机，不可复用
type LoginSession struct {
	strategy    client.PlatformStrategy
	sink        CredentialSink
	notifier    notifier.Notifier
	target      model.LoginTarget
	logger      *zap.Logger
	maxAttempts int
	interval    time.Duration
	sleep       Sleeper

	state    State
	attempts int
}

// SessionOption 会话选项
type SessionOption func(*LoginSession)

// WithMaxAttempts 覆盖平台默认的轮询次数上限
func WithMaxAttempts(n int) SessionOption {
	return func(s *LoginSession) { s.maxAttempts = n }
}

func WithPollInterval(d time.Duration) SessionOption {
	return func(s *LoginSession) { s.interval = d }
}

func WithSleeper(fn Sleeper) SessionOption {
	return func(s *LoginSession) { s.sleep = fn }
}

func NewLoginSession(
	strategy client.PlatformStrategy,
	sink CredentialSink,
	n notifier.Notifier,
	target model.LoginTarget,
	logger *zap.Logger,
	opts ...SessionOption,
) *LoginSession {
	s := &LoginSession{
		strategy: strategy,
		sink:     sink,
		notifier: n,
		target:   target,
		logger: logger.With(
			zap.String("platform", string(strategy.Platform())),
			zap.String("bot_id", target.BotID),
			zap.String("user_id", target.UserID)),
		interval: DefaultPollInterval,
		sleep:    sleepContext,
		state:    StateInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = strategy.TimeoutPolicy().MaxAttempts
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = client.DefaultMaxAttempts
	}
	return s
}

// State 当前状态
func (s *LoginSession) State() State {
	return s.state
}

// Run 执行登录。后端返回的失败以 Outcome 返回且已通知用户；
// 网络故障、存储故障与 ctx 取消以 error 返回，不通知用户。
func (s *LoginSession) Run(ctx context.Context) (*Outcome, error) {
	if s.state != StateInit {
		return nil, fmt.Errorf("登录会话已执行过，当前状态: %s", s.state)
	}

	s.state = StateAwaitingChallenge
	challenge, err := s.strategy.GetChallenge(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason := failureReason(err)
		s.logger.Info("[DF] 获取二维码失败", zap.String("reason", reason), zap.Error(err))
		return s.fail(ctx, StateChallengeFailed, reason, "获取二维码失败："+reason), nil
	}

	s.notifier.SendImage(ctx, s.strategy.ScanPrompt(), challenge.QRImage)

	s.state = StatePolling
	result, outcome, err := s.pollUntilDecided(ctx, challenge)
	if err != nil || outcome != nil {
		return outcome, err
	}

	s.state = StateExchanging
	tokens, err := s.strategy.Exchange(ctx, result.Payload)
	if err != nil {
		be, ok := client.AsBackendError(err)
		if !ok {
			return nil, err
		}
		s.logger.Info("[DF] 登录失败", zap.String("reason", be.Message))
		return s.fail(ctx, StateBindFailed, be.Message, "登录失败："+be.Message), nil
	}

	cred := &model.Credential{
		BotID:       s.target.BotID,
		UserID:      s.target.UserID,
		GroupID:     s.target.GroupID,
		Platform:    s.strategy.Platform(),
		OpenID:      tokens.OpenID,
		AccessToken: tokens.AccessToken,
		IsValid:     true,
	}
	// 先落库再绑定，避免绑定或查询失败丢失已签发的凭据
	if err := s.sink.Save(ctx, cred); err != nil {
		s.logger.Error("[DF] 凭据保存失败", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := s.strategy.Bind(ctx, *tokens); err != nil {
		be, ok := client.AsBackendError(err)
		if !ok {
			return nil, err
		}
		s.logger.Info("[DF] 绑定失败", zap.String("reason", be.Message))
		outcome := s.fail(ctx, StateBindFailed, be.Message, "绑定失败："+be.Message)
		outcome.Credential = cred
		return outcome, nil
	}

	player, err := s.strategy.FetchPlayerInfo(ctx, *tokens)
	if err != nil {
		be, ok := client.AsBackendError(err)
		if !ok {
			return nil, err
		}
		s.logger.Info("[DF] 查询角色信息失败", zap.String("reason", be.Message))
		outcome := s.fail(ctx, StateInfoFetchFailed, be.Message, "查询角色信息失败："+be.Message)
		outcome.Credential = cred
		return outcome, nil
	}

	s.state = StateBound
	s.logger.Info("[DF] 登录成功", zap.String("charac_name", player.CharacName), zap.Int("attempts", s.attempts))
	s.notifier.SendText(ctx, fmt.Sprintf(successTemplate, player.CharacName, utils.FormatAmount(player.Money)))

	return &Outcome{
		State:      StateBound,
		Credential: cred,
		Player:     player,
		Attempts:   s.attempts,
	}, nil
}

// pollUntilDecided 轮询直到成功、失败或超时；非成功时返回终止结果
func (s *LoginSession) pollUntilDecided(ctx context.Context, challenge *client.Challenge) (client.PollResult, *Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return client.PollResult{}, nil, err
		}

		res, err := s.strategy.Poll(ctx, challenge)
		if err != nil {
			return client.PollResult{}, nil, err
		}
		s.attempts++

		switch res.Status {
		case client.PollSuccess:
			s.logger.Debug("扫码确认", zap.Int("attempts", s.attempts))
			return res, nil, nil
		case client.PollRejected:
			s.logger.Info("[DF] 登录失败", zap.String("reason", res.Reason), zap.Int("code", res.Code))
			return client.PollResult{}, s.fail(ctx, StateRejected, res.Reason, "登录失败："+res.Reason), nil
		case client.PollExpired:
			return client.PollResult{}, s.timeout(ctx, TimeoutCauseBackend), nil
		}

		if s.attempts >= s.maxAttempts {
			return client.PollResult{}, s.timeout(ctx, TimeoutCauseBudget), nil
		}

		if err := s.sleep(ctx, s.interval); err != nil {
			return client.PollResult{}, nil, err
		}
	}
}

func (s *LoginSession) timeout(ctx context.Context, cause TimeoutCause) *Outcome {
	s.logger.Info("[DF] 登录超时", zap.String("cause", string(cause)), zap.Int("attempts", s.attempts))
	outcome := s.fail(ctx, StateTimedOut, msgTimeout, msgTimeout)
	outcome.TimeoutCause = cause
	return outcome
}

// fail 进入失败终态并发送唯一一条用户提示
func (s *LoginSession) fail(ctx context.Context, state State, reason, message string) *Outcome {
	s.state = state
	s.notifier.SendText(ctx, message)
	return &Outcome{State: state, Reason: reason, Attempts: s.attempts}
}

// failureReason 后端错误取其原文，其余错误给出通用描述
func failureReason(err error) string {
	if be, ok := client.AsBackendError(err); ok {
		return be.Message
	}
	return msgTransportFault
}
