package notifier

import (
	"context"

	"deltauid-backend-go/internal/model"
)

// Notifier 向发起登录的用户推送消息；发送失败由实现方记录日志，不向调用方返回
type Notifier interface {
	SendText(ctx context.Context, text string)
	SendImage(ctx context.Context, caption string, img []byte)
}

// Factory 为指定用户创建 Notifier
type Factory interface {
	For(target model.LoginTarget) Notifier
}

// FactoryFunc 函数形式的 Factory
type FactoryFunc func(target model.LoginTarget) Notifier

func (f FactoryFunc) For(target model.LoginTarget) Notifier { return f(target) }
