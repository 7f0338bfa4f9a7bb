package utils

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignatureWindow 签名时间戳允许的最大偏差
const SignatureWindow = 5 * time.Minute

var ErrTimestampExpired = errors.New("时间戳已过期")

// CredentialSignParams 手动添加凭据时参与签名的字段
// Platform 为规范化后的取值（qq / wx）
type CredentialSignParams struct {
	BotID     string
	UserID    string
	GroupID   string
	OpenID    string
	Token     string
	Platform  string
	Timestamp string
}

// GenerateCredentialSign 生成手动添加凭据的签名（SHA256前32位）
// 参数按键名排序后以 & 连接，末尾拼接盐值
func GenerateCredentialSign(p CredentialSignParams, salt string) string {
	params := map[string]string{
		"bot_id":    p.BotID,
		"group_id":  p.GroupID,
		"openid":    p.OpenID,
		"platform":  p.Platform,
		"timestamp": p.Timestamp,
		"token":     p.Token,
		"user_id":   p.UserID,
	}

	var sortedKeys []string
	for key := range params {
		sortedKeys = append(sortedKeys, key)
	}
	sort.Strings(sortedKeys)

	var sortedParams []string
	for _, key := range sortedKeys {
		sortedParams = append(sortedParams, fmt.Sprintf("%s=%s", key, params[key]))
	}

	signString := strings.Join(sortedParams, "&") + salt

	hash := sha256.Sum256([]byte(signString))
	fullHash := fmt.Sprintf("%x", hash)

	return fullHash[:32]
}

// VerifyCredentialSign 验证手动添加凭据的签名
func VerifyCredentialSign(p CredentialSignParams, providedSign, salt string) bool {
	expectedSign := GenerateCredentialSign(p, salt)
	return subtle.ConstantTimeCompare([]byte(expectedSign), []byte(providedSign)) == 1
}

// CheckTimestamp 校验秒级时间戳是否在 now 前后 window 内
func CheckTimestamp(timestamp string, now time.Time, window time.Duration) error {
	sec, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("时间戳格式错误: %w", err)
	}
	diff := now.Sub(time.Unix(sec, 0))
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return ErrTimestampExpired
	}
	return nil
}
