package client

import (
	"errors"
	"fmt"
)

// 登录流程各阶段
const (
	StageChallenge = "challenge"
	StageExchange  = "exchange"
	StageBind      = "bind"
	StageInfo      = "info"
)

// ErrTransport 网络、HTTP状态或响应解析错误
var ErrTransport = errors.New("后端请求失败")

var (
	errMissingCode   = errors.New("缺少code字段")
	errMissingCookie = errors.New("登录成功但未返回cookie")
	errMissingWxCode = errors.New("登录成功但未返回wx_code")
)

// BackendError 后端明确返回的失败
type BackendError struct {
	Stage   string
	Code    int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s (code=%d)", e.Stage, e.Message, e.Code)
}

func newBackendError(stage string, code int, message string) *BackendError {
	if message == "" {
		message = "未知错误"
	}
	return &BackendError{Stage: stage, Code: code, Message: message}
}

// AsBackendError 提取后端错误
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func newTransportDecodeError(path string, err error) error {
	return fmt.Errorf("%w: 解析 %s 响应: %v", ErrTransport, path, err)
}
