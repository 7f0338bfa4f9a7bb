package model

import (
	"errors"
	"strings"
	"time"
)

// Platform 登录平台
type Platform string

const (
	PlatformQQ     Platform = "qq"
	PlatformWeChat Platform = "wx"
)

// ErrUnknownPlatform 平台参数无法识别
var ErrUnknownPlatform = errors.New("平台参数错误，请使用QQ或微信")

// ParsePlatform 解析用户输入的平台参数，空值默认为QQ
func ParsePlatform(text string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "qq":
		return PlatformQQ, nil
	case "微信", "wx", "wechat":
		return PlatformWeChat, nil
	default:
		return "", ErrUnknownPlatform
	}
}

// AccType 游戏接口cookie中的账号类型
func (p Platform) AccType() string {
	if p == PlatformWeChat {
		return "wx"
	}
	return "qc"
}

// Credential 扫码登录后持久化的凭据，每个 (bot_id, user_id) 仅保留一条
type Credential struct {
	ID          int64      `json:"id" db:"id"`
	BotID       string     `json:"bot_id" db:"bot_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	GroupID     string     `json:"group_id,omitempty" db:"group_id"`
	Platform    Platform   `json:"platform" db:"platform"`
	OpenID      string     `json:"openid" db:"open_id"`
	AccessToken string     `json:"-" db:"access_token"`
	IsValid     bool       `json:"is_valid" db:"is_valid"`
	LastCheckAt *time.Time `json:"last_check_at,omitempty" db:"last_check_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// PlayerInfo 角色信息
type PlayerInfo struct {
	CharacName string `json:"charac_name"`
	PicURL     string `json:"picurl"`
	Money      int64  `json:"money"`
	Coin       int64  `json:"coin"`
	Tickets    int64  `json:"tickets"`
}

// LoginTarget 发起登录的聊天用户
type LoginTarget struct {
	BotID   string `json:"bot_id"`
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id,omitempty"`
}

// Key 凭据唯一键
func (t LoginTarget) Key() string {
	return t.BotID + ":" + t.UserID
}

// LoginRequest 登录请求
type LoginRequest struct {
	Platform Platform    `json:"platform"`
	Target   LoginTarget `json:"target"`
}

// ExportedCredential 导出给用户的登录信息
type ExportedCredential struct {
	OpenID   string   `json:"openid"`
	Token    string   `json:"token"`
	Platform Platform `json:"platform"`
}
