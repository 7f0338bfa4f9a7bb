package notifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deltauid-backend-go/internal/model"

	"go.uber.org/zap"
)

// OneBotClient OneBot v11 HTTP API 客户端
type OneBotClient struct {
	apiURL      string
	accessToken string
	client      *http.Client
	logger      *zap.Logger
}

type segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

type sendMsgRequest struct {
	MessageType string    `json:"message_type"`
	UserID      int64     `json:"user_id,omitempty"`
	GroupID     int64     `json:"group_id,omitempty"`
	Message     []segment `json:"message"`
}

type sendMsgResponse struct {
	Status  string `json:"status"`
	RetCode int    `json:"retcode"`
	Wording string `json:"wording"`
}

func NewOneBotClient(apiURL, accessToken string, logger *zap.Logger) *OneBotClient {
	return &OneBotClient{
		apiURL:      strings.TrimRight(apiURL, "/"),
		accessToken: accessToken,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// For 返回面向指定用户的 Notifier；群聊中消息会@发起者
func (c *OneBotClient) For(target model.LoginTarget) Notifier {
	return &oneBotNotifier{client: c, target: target}
}

type oneBotNotifier struct {
	client *OneBotClient
	target model.LoginTarget
}

func (n *oneBotNotifier) SendText(ctx context.Context, text string) {
	n.client.send(ctx, n.target, []segment{
		{Type: "text", Data: map[string]string{"text": text}},
	})
}

func (n *oneBotNotifier) SendImage(ctx context.Context, caption string, img []byte) {
	segs := make([]segment, 0, 2)
	if caption != "" {
		segs = append(segs, segment{Type: "text", Data: map[string]string{"text": caption}})
	}
	segs = append(segs, segment{Type: "image", Data: map[string]string{
		"file": "base64://" + base64.StdEncoding.EncodeToString(img),
	}})
	n.client.send(ctx, n.target, segs)
}

func (c *OneBotClient) send(ctx context.Context, target model.LoginTarget, segs []segment) {
	if err := c.sendMsg(ctx, target, segs); err != nil {
		c.logger.Error("❌ 消息发送失败",
			zap.String("bot_id", target.BotID),
			zap.String("user_id", target.UserID),
			zap.String("group_id", target.GroupID),
			zap.Error(err))
	}
}

func (c *OneBotClient) sendMsg(ctx context.Context, target model.LoginTarget, segs []segment) error {
	userID, err := strconv.ParseInt(target.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("无效的用户ID %q: %w", target.UserID, err)
	}

	req := sendMsgRequest{MessageType: "private", UserID: userID}
	if target.GroupID != "" {
		groupID, err := strconv.ParseInt(target.GroupID, 10, 64)
		if err != nil {
			return fmt.Errorf("无效的群号 %q: %w", target.GroupID, err)
		}
		req = sendMsgRequest{MessageType: "group", GroupID: groupID}
		segs = append([]segment{{Type: "at", Data: map[string]string{"qq": target.UserID}}}, segs...)
	}
	req.Message = segs

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/send_msg", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("请求OneBot失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取OneBot响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OneBot HTTP状态异常: %d", resp.StatusCode)
	}

	var result sendMsgResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("解析OneBot响应失败: %w", err)
	}
	if result.RetCode != 0 {
		return fmt.Errorf("OneBot返回错误: retcode=%d %s", result.RetCode, result.Wording)
	}
	return nil
}
