package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/notifier"
	"deltauid-backend-go/internal/service"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var (
		platformText string
		target       model.LoginTarget
		qrFile       string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "扫码登录并保存凭据",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := model.ParsePlatform(platformText)
			if err != nil {
				return fmt.Errorf("平台参数错误，请使用QQ或微信")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			term := notifier.NewTerminalNotifier(cmd.OutOrStdout(), qrFile, e.logger)
			factory := notifier.FactoryFunc(func(model.LoginTarget) notifier.Notifier { return term })

			svc := service.NewLoginService(e.strategy, e.credentials, factory, e.cfg.Login, e.logger)
			outcome, err := svc.Login(ctx, model.LoginRequest{Platform: platform, Target: target})
			if err != nil {
				return err
			}
			if !outcome.Success() {
				return fmt.Errorf("登录未完成: %s", outcome.State)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&platformText, "platform", "p", "qq", "登录平台 (qq, wx)")
	flags.StringVarP(&target.UserID, "user", "u", "", "用户ID")
	flags.StringVarP(&target.BotID, "bot", "b", "cli", "机器人ID")
	flags.StringVarP(&target.GroupID, "group", "g", "", "群ID")
	flags.StringVar(&qrFile, "qr-file", "dflogin-qr.png", "终端无法显示二维码时保存图片的路径")

	cmd.MarkFlagRequired("user")

	return cmd
}
