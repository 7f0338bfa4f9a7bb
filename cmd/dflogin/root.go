package main

import (
	"fmt"
	"os"

	"deltauid-backend-go/internal/client"
	"deltauid-backend-go/internal/config"
	applog "deltauid-backend-go/internal/logger"
	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/repository"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "dflogin",
	Short: "三角洲行动 扫码登录命令行工具",
	Long: `dflogin 在终端中完成QQ/微信扫码登录，并将凭据写入配置的存储。

示例:
  dflogin login --platform qq --user 10001 --bot cli
  dflogin export --user 10001 --bot cli
  dflogin refresh --db-driver sqlite --sqlite-path deltauid.db
`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("db-driver", "", "存储类型 (mysql, sqlite)")
	flags.String("sqlite-path", "", "SQLite 数据库文件路径")
	flags.String("base-url", "", "游戏后端接口地址")
	flags.String("log-level", "warn", "日志级别 (debug, info, warn, error)")

	// 命令行参数优先于 .env 与环境变量
	viper.BindPFlag("DB_DRIVER", flags.Lookup("db-driver"))
	viper.BindPFlag("DB_SQLITE_PATH", flags.Lookup("sqlite-path"))
	viper.BindPFlag("DELTA_BASE_URL", flags.Lookup("base-url"))

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newRefreshCmd())
}

// env 子命令共用的依赖
type env struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *repository.Database
	credentials *repository.CredentialRepository
	api         *client.DeltaAPI
}

func newEnv() (*env, error) {
	cfg := config.Load()
	// 命令行默认只输出警告以上的日志，避免打断二维码
	logCfg := cfg.Log
	if level, _ := rootCmd.PersistentFlags().GetString("log-level"); level != "" {
		logCfg.Level = level
	}
	logger, err := applog.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	db, err := repository.NewDatabase(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("数据库初始化失败: %w", err)
	}

	api := client.NewDeltaAPI(client.DeltaAPIConfig{
		BaseURL:      cfg.Delta.BaseURL,
		Timeout:      cfg.Delta.HTTPTimeout,
		RateLimitQPS: cfg.Delta.RateLimitQPS,
	}, logger)

	return &env{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		credentials: repository.NewCredentialRepository(db, logger),
		api:         api,
	}, nil
}

func (e *env) strategy(p model.Platform) (client.PlatformStrategy, error) {
	return client.NewStrategy(p, e.api)
}

func (e *env) Close() {
	e.db.Close()
	_ = e.logger.Sync()
}
