package client

import (
	"context"
	"fmt"
	"time"

	"deltauid-backend-go/internal/model"
)

// DefaultMaxAttempts 轮询次数上限，0.5秒间隔下约60秒
const DefaultMaxAttempts = 120

// Challenge 一次扫码登录的临时状态，仅在单个会话内使用，不持久化
type Challenge struct {
	QRImage   []byte
	QRSig     string
	Token     string
	LoginSig  string
	UUID      string
	Cookie    string // 不透明的会话cookie，轮询成功后会被替换
	CreatedAt time.Time
}

// PollStatus 单次轮询的结论
type PollStatus int

const (
	PollPending PollStatus = iota
	PollSuccess
	PollRejected
	PollExpired
)

func (s PollStatus) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSuccess:
		return "success"
	case PollRejected:
		return "rejected"
	case PollExpired:
		return "expired"
	default:
		return fmt.Sprintf("PollStatus(%d)", int(s))
	}
}

// PollResult 轮询结果
type PollResult struct {
	Status  PollStatus
	Payload string // 成功时用于换取凭据：QQ为刷新后的cookie，微信为wx_code
	Reason  string
	Code    int
}

// TimeoutPolicy 平台相关的超时策略
type TimeoutPolicy struct {
	MaxAttempts int
	// BackendTimeout 后端会返回明确的超时码
	BackendTimeout bool
}

// PlatformStrategy 平台相关的扫码、轮询与换取凭据实现
type PlatformStrategy interface {
	Platform() model.Platform
	TimeoutPolicy() TimeoutPolicy
	ScanPrompt() string
	GetChallenge(ctx context.Context) (*Challenge, error)
	Poll(ctx context.Context, challenge *Challenge) (PollResult, error)
	Exchange(ctx context.Context, payload string) (*TokenPair, error)
	Bind(ctx context.Context, tokens TokenPair) error
	FetchPlayerInfo(ctx context.Context, tokens TokenPair) (*model.PlayerInfo, error)
}

// NewStrategy 按平台选择实现
func NewStrategy(platform model.Platform, api *DeltaAPI) (PlatformStrategy, error) {
	switch platform {
	case model.PlatformQQ:
		return NewQQStrategy(api), nil
	case model.PlatformWeChat:
		return NewWeChatStrategy(api), nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownPlatform, platform)
	}
}
