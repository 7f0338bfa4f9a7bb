package main

import (
	"fmt"

	"deltauid-backend-go/internal/service"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var botID, userID string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出已保存的凭据",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			svc := service.NewCredentialService(e.credentials, e.strategy, e.logger)
			exported, err := svc.Export(cmd.Context(), botID, userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "openid: %s\n", exported.OpenID)
			fmt.Fprintf(out, "token: %s\n", exported.Token)
			fmt.Fprintf(out, "platform: %s\n", exported.Platform)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "用户ID")
	cmd.Flags().StringVarP(&botID, "bot", "b", "cli", "机器人ID")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "检查所有凭据是否仍然有效",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			svc := service.NewCredentialService(e.credentials, e.strategy, e.logger)
			result, err := svc.RefreshAll(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "共 %d 个凭据：有效 %d，失效 %d，跳过 %d\n",
				result.Total, result.Valid, result.Invalid, result.Skipped)
			return nil
		},
	}
}
