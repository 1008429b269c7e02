package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/rvs/internal/logger"
	"github.com/blues/rvs/internal/logic"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
)

// VaultCloseJob 将已过截止时间的金库标记为 closed
// 状态仅供查询使用，开奖判断始终以截止时间为准
type VaultCloseJob struct {
	vaultLogic *logic.VaultLogic
	pool       *ants.Pool
	interval   time.Duration
	now        func() time.Time
}

// NewVaultCloseJob 创建金库关闭任务
func NewVaultCloseJob(vaultLogic *logic.VaultLogic, interval time.Duration, workers int) (*VaultCloseJob, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &VaultCloseJob{
		vaultLogic: vaultLogic,
		pool:       pool,
		interval:   interval,
		now:        time.Now,
	}, nil
}

// GetName 获取任务名称
func (j *VaultCloseJob) GetName() string {
	return "vault_close_marker"
}

// GetSchedule 获取调度配置
func (j *VaultCloseJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务，返回本轮关闭的金库数量
func (j *VaultCloseJob) Execute() int {
	addresses, err := j.vaultLogic.ListExpiredOpen(j.now())
	if err != nil {
		logger.Error("Failed to fetch expired vaults: %v", err)
		return 0
	}
	if len(addresses) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	var closed int64
	for _, address := range addresses {
		address := address
		wg.Add(1)
		err := j.pool.Submit(func() {
			defer wg.Done()
			changed, err := j.vaultLogic.MarkClosed(address)
			if err != nil {
				logger.Error("Failed to close vault %s: %v", address.Hex(), err)
				return
			}
			if changed {
				atomic.AddInt64(&closed, 1)
			}
		})
		if err != nil {
			wg.Done()
			logger.Warn("Failed to submit close task for vault %s: %v", address.Hex(), err)
		}
	}
	wg.Wait()

	logger.Info("Vault close task completed. Closed %d of %d expired vaults", closed, len(addresses))
	return int(closed)
}

// Release 释放协程池
func (j *VaultCloseJob) Release() {
	j.pool.Release()
}
