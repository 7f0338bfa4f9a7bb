package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/utils"

	"go.uber.org/zap"
)

// QQStrategy QQ扫码登录
type QQStrategy struct {
	api *DeltaAPI
	now func() time.Time
}

func NewQQStrategy(api *DeltaAPI) *QQStrategy {
	return &QQStrategy{api: api, now: time.Now}
}

func (s *QQStrategy) Platform() model.Platform { return model.PlatformQQ }

// TimeoutPolicy 后端以 -1 表示二维码超时，同时保留次数上限兜底
func (s *QQStrategy) TimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{MaxAttempts: DefaultMaxAttempts, BackendTimeout: true}
}

func (s *QQStrategy) ScanPrompt() string { return "请打开手机qq使用摄像头扫码" }

func (s *QQStrategy) GetChallenge(ctx context.Context) (*Challenge, error) {
	resp, err := s.api.call(ctx, http.MethodGet, "/login/qq/sig", nil)
	if err != nil {
		return nil, err
	}
	if !resp.Status || !isJSONObject(resp.Message) {
		return nil, newBackendError(StageChallenge, int(resp.Code), messageText(resp.Message))
	}

	var msg struct {
		Image    string          `json:"image"`
		Cookie   json.RawMessage `json:"cookie"`
		QRSig    string          `json:"qrSig"`
		Token    json.RawMessage `json:"token"`
		LoginSig string          `json:"loginSig"`
	}
	if err := json.Unmarshal(resp.Message, &msg); err != nil {
		return nil, newBackendError(StageChallenge, int(resp.Code), "二维码数据解析失败")
	}

	img, err := decodeBase64Image(msg.Image)
	if err != nil || len(img) == 0 {
		s.api.logger.Warn("二维码图片解码失败", zap.Error(err))
		return nil, newBackendError(StageChallenge, int(resp.Code), "二维码图片解码失败")
	}

	token := rawScalar(msg.Token)
	if token == "" {
		token = strconv.FormatInt(utils.QrToken(msg.QRSig), 10)
	}

	return &Challenge{
		QRImage:   img,
		QRSig:     msg.QRSig,
		Token:     token,
		LoginSig:  msg.LoginSig,
		Cookie:    string(msg.Cookie),
		CreatedAt: s.now(),
	}, nil
}

func (s *QQStrategy) Poll(ctx context.Context, challenge *Challenge) (PollResult, error) {
	params := url.Values{}
	params.Set("cookie", challenge.Cookie)
	params.Set("qrSig", challenge.QRSig)
	params.Set("token", challenge.Token)
	params.Set("loginSig", challenge.LoginSig)

	resp, err := s.api.call(ctx, http.MethodPost, "/login/qq/status", params)
	if err != nil {
		return PollResult{}, err
	}

	if !resp.hasCode {
		return PollResult{}, newTransportDecodeError("/login/qq/status", errMissingCode)
	}

	code := int(resp.Code)
	switch code {
	case 0:
		var data struct {
			Cookie json.RawMessage `json:"cookie"`
		}
		if len(resp.Data) > 0 && string(resp.Data) != "null" {
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return PollResult{}, newTransportDecodeError("/login/qq/status", err)
			}
		}
		if len(data.Cookie) == 0 || string(data.Cookie) == "null" {
			return PollResult{}, newTransportDecodeError("/login/qq/status", errMissingCookie)
		}
		challenge.Cookie = string(data.Cookie)
		return PollResult{Status: PollSuccess, Payload: challenge.Cookie, Code: code}, nil
	case -1:
		return PollResult{Status: PollExpired, Reason: messageText(resp.Message), Code: code}, nil
	case -2, -3, -4:
		reason := messageText(resp.Message)
		if reason == "" {
			reason = "未知错误"
		}
		return PollResult{Status: PollRejected, Reason: reason, Code: code}, nil
	default:
		return PollResult{Status: PollPending, Code: code}, nil
	}
}

func (s *QQStrategy) Exchange(ctx context.Context, payload string) (*TokenPair, error) {
	params := url.Values{}
	params.Set("cookie", payload)
	return s.api.exchangeToken(ctx, "/login/qq/token", params)
}

func (s *QQStrategy) Bind(ctx context.Context, tokens TokenPair) error {
	return s.api.Bind(ctx, model.PlatformQQ, tokens)
}

func (s *QQStrategy) FetchPlayerInfo(ctx context.Context, tokens TokenPair) (*model.PlayerInfo, error) {
	return s.api.FetchPlayerInfo(ctx, model.PlatformQQ, tokens)
}

// decodeBase64Image 解码base64图片，兼容 data URI 前缀
func decodeBase64Image(s string) ([]byte, error) {
	if i := strings.Index(s, ","); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// rawScalar 将JSON字符串或数字转为文本
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
