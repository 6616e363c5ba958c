/*
 * @module service/cleanup/report_cleanup_service
 * @description 报告清理服务，定期删除超过保存期限的分析运行及其判定、证据与快照
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 定时触发 -> 加锁 -> 读取保存天数 -> 分批删除 -> 清除缓存 -> 记录结果
 * @rules 多实例部署时同一时刻只有一个实例执行清理；未结束的运行不删除
 * @dependencies siconfi-service/service/config, gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/config, service/distributed_lock
 */

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"siconfi-service/service/cache"
	"siconfi-service/service/distributed_lock"
	"siconfi-service/service/metrics"
	"siconfi-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	cleanupLockKey = "cleanup:analysis_runs"
	batchSize      = 200
)

// RetentionSource 提供分析结果保存天数
type RetentionSource interface {
	GetRetentionDays() int
}

// ReportCleanupService 报告清理服务
type ReportCleanupService struct {
	db        *gorm.DB
	retention RetentionSource
	locker    *distributed_lock.LockExecutor
	cache     cache.ReportCache
	metrics   *metrics.Metrics
	schedule  string
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	now       func() time.Time
}

// NewReportCleanupService 创建报告清理服务实例，metrics 可以为空
func NewReportCleanupService(db *gorm.DB, retention RetentionSource, lock distributed_lock.DistributedLock,
	reportCache cache.ReportCache, m *metrics.Metrics, schedule string) *ReportCleanupService {
	ctx, cancel := context.WithCancel(context.Background())
	if reportCache == nil {
		reportCache = cache.NopReportCache{}
	}
	return &ReportCleanupService{
		db:        db,
		retention: retention,
		locker:    distributed_lock.NewLockExecutor(lock),
		cache:     reportCache,
		metrics:   m,
		schedule:  schedule,
		cron:      cron.New(cron.WithSeconds()),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// CleanupExpiredRuns 删除过期的分析运行，返回删除的运行数
func (s *ReportCleanupService) CleanupExpiredRuns(ctx context.Context) (int64, error) {
	var total int64
	err := s.locker.ExecuteWithLock(ctx, cleanupLockKey, 30*time.Minute, func() error {
		days := s.retention.GetRetentionDays()
		cutoff := s.now().AddDate(0, 0, -days)
		slog.Info("开始清理过期分析", "cutoff_date", cutoff.Format("2006-01-02 15:04:05"), "retention_days", days)
		startTime := time.Now()

		for {
			n, err := s.deleteBatch(ctx, cutoff)
			total += n
			if err != nil {
				return err
			}
			if n < batchSize {
				break
			}
		}

		slog.Info("过期分析清理完成", "deleted_count", total, "duration_ms", time.Since(startTime).Milliseconds())
		return nil
	})
	if errors.Is(err, distributed_lock.ErrLockHeld) {
		slog.Info("其他实例正在清理，跳过本次执行")
		return 0, nil
	}
	if s.metrics != nil && total > 0 {
		s.metrics.RunsCleaned(total)
	}
	return total, err
}

// deleteBatch 删除一批过期运行及其附属数据
func (s *ReportCleanupService) deleteBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.AnalysisRun{}).
		Where("created_at < ? AND status NOT IN ?", cutoff, []string{models.RunStatusPending, models.RunStatusRunning}).
		Order("created_at").Limit(batchSize).Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("查询过期分析失败: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&models.VerdictRecord{}, &models.EvidenceRecord{}, &models.DatasetSnapshot{}} {
			if err := tx.Where("run_id IN ?", ids).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Where("id IN ?", ids).Delete(&models.AnalysisRun{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("删除过期分析失败: %w", err)
	}

	if err := s.cache.Delete(ctx, ids...); err != nil {
		slog.Warn("删除报告缓存失败", "error", err)
	}
	return int64(len(ids)), nil
}

// StartScheduledCleanup 启动定时清理任务
func (s *ReportCleanupService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("报告清理调度器已经启动")
	}

	// Cron表达式：秒 分 时 日 月 周
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.CleanupExpiredRuns(s.ctx); err != nil {
			slog.Error("定时清理任务失败", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true
	slog.Info("报告清理调度器启动成功", "schedule", s.schedule)
	return nil
}

// StopScheduledCleanup 停止定时清理任务
func (s *ReportCleanupService) StopScheduledCleanup() {
	if !s.started {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false
	slog.Info("报告清理调度器已停止")
}
