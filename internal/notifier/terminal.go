package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/tuotoo/qrcode"
	"go.uber.org/zap"
	"rsc.io/qr"
)

// TerminalNotifier 在终端中输出文本并渲染二维码，供命令行登录使用
type TerminalNotifier struct {
	out      io.Writer
	fallback string // 二维码无法解析时保存原图的路径
	logger   *zap.Logger
}

func NewTerminalNotifier(out io.Writer, fallback string, logger *zap.Logger) *TerminalNotifier {
	return &TerminalNotifier{out: out, fallback: fallback, logger: logger}
}

func (n *TerminalNotifier) SendText(_ context.Context, text string) {
	fmt.Fprintln(n.out, text)
}

func (n *TerminalNotifier) SendImage(_ context.Context, caption string, img []byte) {
	if caption != "" {
		fmt.Fprintln(n.out, caption)
	}

	matrix, err := qrcode.Decode(bytes.NewReader(img))
	if err != nil {
		n.logger.Warn("二维码解析失败，保存原图", zap.String("path", n.fallback), zap.Error(err))
		if werr := os.WriteFile(n.fallback, img, 0o644); werr != nil {
			n.logger.Error("保存二维码图片失败", zap.Error(werr))
			return
		}
		fmt.Fprintf(n.out, "二维码已保存到 %s\n", n.fallback)
		return
	}

	qrterminal.GenerateWithConfig(matrix.Content, qrterminal.Config{
		Level:     qr.M,
		Writer:    n.out,
		BlackChar: qrterminal.WHITE,
		WhiteChar: qrterminal.BLACK,
		QuietZone: 1,
	})
}
