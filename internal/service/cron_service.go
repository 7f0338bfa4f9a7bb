package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultCredentialRefreshSpec 每天03:00检查所有凭据
const DefaultCredentialRefreshSpec = "0 0 3 * * *"

// CronService 定时任务服务
type CronService struct {
	cron          *cron.Cron
	credentialSvc *CredentialService
	refreshSpec   string
	refreshLimit  time.Duration
	logger        *zap.Logger
}

func NewCronService(credentialSvc *CredentialService, refreshSpec string, logger *zap.Logger) *CronService {
	// 创建cron实例，使用秒级精度
	c := cron.New(cron.WithSeconds())

	if refreshSpec == "" {
		refreshSpec = DefaultCredentialRefreshSpec
	}
	return &CronService{
		cron:          c,
		credentialSvc: credentialSvc,
		refreshSpec:   refreshSpec,
		refreshLimit:  time.Hour,
		logger:        logger,
	}
}

// Start 启动定时任务
func (s *CronService) Start() error {
	s.logger.Info("🕒 启动定时任务服务")

	if _, err := s.cron.AddFunc(s.refreshSpec, s.RefreshCredentials); err != nil {
		s.logger.Error("添加凭据检查任务失败", zap.Error(err), zap.String("spec", s.refreshSpec))
		return err
	}

	s.cron.Start()

	s.logger.Info("✅ 定时任务服务启动成功")
	s.logger.Info("📅 定时任务计划:", zap.String("凭据有效性检查", s.refreshSpec))
	return nil
}

// RefreshCredentials 检查所有凭据，单次运行最长 refreshLimit
func (s *CronService) RefreshCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshLimit)
	defer cancel()

	if _, err := s.credentialSvc.RefreshAll(ctx); err != nil {
		s.logger.Error("凭据有效性检查中断", zap.Error(err))
	}
}

// Entries 已注册的任务数
func (s *CronService) Entries() int {
	return len(s.cron.Entries())
}

// Stop 停止定时任务，等待正在运行的任务结束
func (s *CronService) Stop() {
	s.logger.Info("🛑 停止定时任务服务")
	<-s.cron.Stop().Done()
	s.logger.Info("✅ 定时任务服务已停止")
}
