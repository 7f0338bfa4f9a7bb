package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deltauid-backend-go/internal/model"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Mobile Safari/537.36"

// DeltaAPI 游戏后端HTTP客户端，所有登录会话共享同一个限流器
type DeltaAPI struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// DeltaAPIConfig 客户端配置
type DeltaAPIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RateLimitQPS int
}

// TokenPair 长期有效的登录凭据
type TokenPair struct {
	AccessToken string
	OpenID      string
}

func NewDeltaAPI(cfg DeltaAPIConfig, logger *zap.Logger) *DeltaAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimitQPS > 0 {
		limit = rate.Limit(cfg.RateLimitQPS)
		burst = cfg.RateLimitQPS
	}

	return &DeltaAPI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// apiResponse 后端通用响应
type apiResponse struct {
	Status  bool            `json:"status"`
	Code    flexInt         `json:"code"`
	Message json.RawMessage `json:"message"` // 可能为字符串或对象
	Data    json.RawMessage `json:"data"`

	hasCode bool
}

// UnmarshalJSON 记录 code 字段是否存在，缺失与 null 均视为未返回
func (r *apiResponse) UnmarshalJSON(b []byte) error {
	type plain apiResponse
	var aux struct {
		plain
		Code json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = apiResponse(aux.plain)
	if len(aux.Code) == 0 || string(aux.Code) == "null" {
		return nil
	}
	if err := r.Code.UnmarshalJSON(aux.Code); err != nil {
		return err
	}
	r.hasCode = true
	return nil
}

// flexInt 兼容数字与字符串两种写法的整数
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("无法解析数值 %q: %w", str, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// messageText 将 message 字段转为文本，非字符串时返回空
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// isJSONObject 判断原始JSON是否为对象
func isJSONObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}

// call 发起请求并解析通用响应；网络、状态码与解析错误包装为 ErrTransport
func (a *DeltaAPI) call(ctx context.Context, method, path string, params url.Values) (*apiResponse, error) {
	body, err := a.fetch(ctx, method, a.baseURL+path, params)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		a.logger.Error("❌ 响应解析失败", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: 解析 %s 响应: %v", ErrTransport, path, err)
	}
	return &resp, nil
}

// fetch 发起原始请求，返回响应体
func (a *DeltaAPI) fetch(ctx context.Context, method, rawURL string, params url.Values) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: 限流等待: %v", ErrTransport, err)
	}

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		target := rawURL
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 构建请求: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("platform", "android")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Error("❌ 请求异常", zap.String("url", rawURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.logger.Error("❌ 响应读取失败", zap.String("url", rawURL), zap.Error(err))
		return nil, fmt.Errorf("%w: 读取响应: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		a.logger.Error("❌ HTTP状态异常",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: HTTP状态 %d", ErrTransport, resp.StatusCode)
	}
	return body, nil
}

// exchangeToken 解析换取凭据接口的响应
func (a *DeltaAPI) exchangeToken(ctx context.Context, path string, params url.Values) (*TokenPair, error) {
	resp, err := a.call(ctx, http.MethodPost, path, params)
	if err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, newBackendError(StageExchange, int(resp.Code), messageText(resp.Message))
	}

	var data struct {
		AccessToken string `json:"access_token"`
		OpenID      string `json:"openid"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: 解析凭据: %v", ErrTransport, err)
	}
	if data.AccessToken == "" || data.OpenID == "" {
		return nil, newBackendError(StageExchange, int(resp.Code), "返回数据缺少access_token或openid")
	}
	return &TokenPair{AccessToken: data.AccessToken, OpenID: data.OpenID}, nil
}

func credentialParams(platform model.Platform, tokens TokenPair) url.Values {
	params := url.Values{}
	params.Set("openid", tokens.OpenID)
	params.Set("access_token", tokens.AccessToken)
	params.Set("acctype", platform.AccType())
	return params
}

// Bind 向游戏后端注册凭据
func (a *DeltaAPI) Bind(ctx context.Context, platform model.Platform, tokens TokenPair) error {
	resp, err := a.call(ctx, http.MethodPost, "/user/bind", credentialParams(platform, tokens))
	if err != nil {
		return err
	}
	if !resp.Status {
		return newBackendError(StageBind, int(resp.Code), messageText(resp.Message))
	}
	return nil
}

// FetchPlayerInfo 查询角色信息
func (a *DeltaAPI) FetchPlayerInfo(ctx context.Context, platform model.Platform, tokens TokenPair) (*model.PlayerInfo, error) {
	resp, err := a.call(ctx, http.MethodPost, "/user/info", credentialParams(platform, tokens))
	if err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, newBackendError(StageInfo, int(resp.Code), messageText(resp.Message))
	}

	var data struct {
		Player struct {
			CharacName string `json:"charac_name"`
			PicURL     string `json:"picurl"`
		} `json:"player"`
		Money   flexInt `json:"money"`
		Coin    flexInt `json:"coin"`
		Tickets flexInt `json:"tickets"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: 解析角色信息: %v", ErrTransport, err)
	}

	return &model.PlayerInfo{
		CharacName: data.Player.CharacName,
		PicURL:     data.Player.PicURL,
		Money:      int64(data.Money),
		Coin:       int64(data.Coin),
		Tickets:    int64(data.Tickets),
	}, nil
}
