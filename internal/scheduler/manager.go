package scheduler

import (
	"time"

	"github.com/blues/rvs/internal/config"
	"github.com/blues/rvs/internal/logger"
	"github.com/blues/rvs/internal/logic"
	"github.com/go-co-op/gocron/v2"
)

// Manager 任务管理器
type Manager struct {
	scheduler  gocron.Scheduler
	vaultLogic *logic.VaultLogic
	config     *config.Config
	closeJob   *VaultCloseJob
}

// NewManager 创建新的任务管理器
func NewManager(vaultLogic *logic.VaultLogic, cfg *config.Config) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Manager{
		scheduler:  s,
		vaultLogic: vaultLogic,
		config:     cfg,
	}, nil
}

// Start 创建并启动任务管理器
func Start(vaultLogic *logic.VaultLogic, cfg *config.Config) (*Manager, error) {
	manager, err := NewManager(vaultLogic, cfg)
	if err != nil {
		return nil, err
	}

	// 注册所有任务
	if err := manager.RegisterJobs(); err != nil {
		manager.Stop()
		return nil, err
	}

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager, nil
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() error {
	// 注册金库关闭任务
	return m.RegisterVaultCloseJob()
}

// RegisterVaultCloseJob 注册金库关闭任务
func (m *Manager) RegisterVaultCloseJob() error {
	interval := time.Duration(m.config.Task.Interval) * time.Second
	job, err := NewVaultCloseJob(m.vaultLogic, interval, m.config.Task.Workers)
	if err != nil {
		return err
	}
	m.closeJob = job

	_, err = m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
		return err
	}
	return nil
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	if m.closeJob != nil {
		m.closeJob.Release()
	}
	logger.Info("Task manager stopped")
}
