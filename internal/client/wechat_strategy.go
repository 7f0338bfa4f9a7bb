package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"deltauid-backend-go/internal/model"

	"go.uber.org/zap"
)

// wechatConfirmedCode 用户已在微信确认登录
const wechatConfirmedCode = 3

// WeChatStrategy 微信扫码登录
type WeChatStrategy struct {
	api *DeltaAPI
	now func() time.Time
}

func NewWeChatStrategy(api *DeltaAPI) *WeChatStrategy {
	return &WeChatStrategy{api: api, now: time.Now}
}

func (s *WeChatStrategy) Platform() model.Platform { return model.PlatformWeChat }

// TimeoutPolicy 后端没有超时码，只能依赖次数上限
func (s *WeChatStrategy) TimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{MaxAttempts: DefaultMaxAttempts}
}

func (s *WeChatStrategy) ScanPrompt() string { return "请打开手机微信使用摄像头扫码" }

func (s *WeChatStrategy) GetChallenge(ctx context.Context) (*Challenge, error) {
	resp, err := s.api.call(ctx, http.MethodGet, "/login/wechat/qrcode", nil)
	if err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, newBackendError(StageChallenge, int(resp.Code), messageText(resp.Message))
	}

	var data struct {
		QRCode string `json:"qrCode"`
		UUID   string `json:"uuid"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, newBackendError(StageChallenge, int(resp.Code), "二维码数据解析失败")
		}
	}
	if data.QRCode == "" || data.UUID == "" {
		msg := messageText(resp.Message)
		if msg == "" {
			msg = "二维码数据缺失"
		}
		return nil, newBackendError(StageChallenge, int(resp.Code), msg)
	}

	img, err := s.api.fetch(ctx, http.MethodGet, data.QRCode, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.api.logger.Error("获取微信二维码图片失败", zap.String("url", data.QRCode), zap.Error(err))
		return nil, newBackendError(StageChallenge, 0, "获取二维码图片失败，请重试")
	}

	return &Challenge{
		QRImage:   img,
		UUID:      data.UUID,
		CreatedAt: s.now(),
	}, nil
}

func (s *WeChatStrategy) Poll(ctx context.Context, challenge *Challenge) (PollResult, error) {
	params := url.Values{}
	params.Set("uuid", challenge.UUID)

	resp, err := s.api.call(ctx, http.MethodGet, "/login/wechat/status", params)
	if err != nil {
		return PollResult{}, err
	}

	code := int(resp.Code)
	if !resp.Status {
		reason := messageText(resp.Message)
		if reason == "" {
			reason = "未知错误"
		}
		return PollResult{Status: PollRejected, Reason: reason, Code: code}, nil
	}
	if code != wechatConfirmedCode {
		return PollResult{Status: PollPending, Code: code}, nil
	}

	var data struct {
		WxCode string `json:"wx_code"`
	}
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return PollResult{}, newTransportDecodeError("/login/wechat/status", err)
		}
	}
	if data.WxCode == "" {
		return PollResult{}, newTransportDecodeError("/login/wechat/status", errMissingWxCode)
	}
	return PollResult{Status: PollSuccess, Payload: data.WxCode, Code: code}, nil
}

func (s *WeChatStrategy) Exchange(ctx context.Context, payload string) (*TokenPair, error) {
	params := url.Values{}
	params.Set("wx_code", payload)
	return s.api.exchangeToken(ctx, "/login/wechat/token", params)
}

func (s *WeChatStrategy) Bind(ctx context.Context, tokens TokenPair) error {
	return s.api.Bind(ctx, model.PlatformWeChat, tokens)
}

func (s *WeChatStrategy) FetchPlayerInfo(ctx context.Context, tokens TokenPair) (*model.PlayerInfo, error) {
	return s.api.FetchPlayerInfo(ctx, model.PlatformWeChat, tokens)
}
