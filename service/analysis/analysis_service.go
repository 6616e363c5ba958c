/*
 * @module service/analysis/analysis_service
 * @description 对账分析服务：接收分析请求，加载数据，执行规则目录并持久化报告
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 请求校验 -> 加锁 -> 保存快照 -> 并发加载 -> Seal -> 规则评估 -> 持久化 -> 缓存/事件/指标
 * @rules 同一实体同一年度同时只有一个分析在执行；加载阶段结束后注册表只读；事件发布失败不影响结果
 * @dependencies gorm.io/gorm, golang.org/x/sync/errgroup, siconfi-service/service/reconcile
 * @refs service/siconfi/catalogue.go, service/models/analysis.go
 */

package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"siconfi-service/service/cache"
	"siconfi-service/service/distributed_lock"
	"siconfi-service/service/event"
	"siconfi-service/service/metrics"
	"siconfi-service/service/models"
	"siconfi-service/service/reconcile"
	"siconfi-service/service/siconfi"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ToleranceSource 提供当前生效的容差
type ToleranceSource interface {
	GetTolerance() reconcile.Tolerance
}

type fixedTolerance reconcile.Tolerance

func (f fixedTolerance) GetTolerance() reconcile.Tolerance { return reconcile.Tolerance(f) }

// Option 服务选项
type Option func(*Service)

// WithNotifier 设置事件发布器
func WithNotifier(n event.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithCache 设置报告缓存
func WithCache(c cache.ReportCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLock 设置分布式锁
func WithLock(l distributed_lock.DistributedLock, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = distributed_lock.NewLockExecutor(l)
		s.lockTTL = ttl
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithToleranceSource 设置容差来源
func WithToleranceSource(t ToleranceSource) Option {
	return func(s *Service) { s.tolerance = t }
}

// WithRoundingAsPass 设置 OK_WITH_ROUNDING 是否计为通过
func WithRoundingAsPass(b bool) Option {
	return func(s *Service) { s.roundingAsPass = b }
}

// WithLoadConcurrency 设置加载阶段的并发数
func WithLoadConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.loadConcurrency = n
		}
	}
}

// WithTimeout 设置单次分析的超时时间
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithScriptCompiler 设置脚本编译器
func WithScriptCompiler(c *reconcile.ScriptCompiler) Option {
	return func(s *Service) { s.compiler = c }
}

// Service 对账分析服务
type Service struct {
	db              *gorm.DB
	notifier        event.Notifier
	cache           cache.ReportCache
	locker          *distributed_lock.LockExecutor
	lockTTL         time.Duration
	metrics         *metrics.Metrics
	tolerance       ToleranceSource
	compiler        *reconcile.ScriptCompiler
	roundingAsPass  bool
	loadConcurrency int
	timeout         time.Duration
}

// NewService 创建分析服务
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:              db,
		notifier:        event.NopNotifier{},
		cache:           cache.NopReportCache{},
		locker:          distributed_lock.NewLockExecutor(distributed_lock.NewMemoryLock()),
		lockTTL:         10 * time.Minute,
		tolerance:       fixedTolerance(reconcile.DefaultTolerance()),
		compiler:        reconcile.NewScriptCompiler(),
		roundingAsPass:  true,
		loadConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compiler 脚本编译器，脚本规则服务与分析共用同一个缓存
func (s *Service) Compiler() *reconcile.ScriptCompiler {
	return s.compiler
}

func lockKey(entityCode string, fiscalYear int) string {
	return fmt.Sprintf("analysis:%s:%d", entityCode, fiscalYear)
}

// Submit 提交并同步执行一次分析
func (s *Service) Submit(ctx context.Context, req *AnalysisRequest) (*models.AnalysisRun, error) {
	params, err := req.Params()
	if err != nil {
		return nil, err
	}
	deliveries, err := siconfi.DecodeDeliveries(req.Deliveries)
	if err != nil {
		return nil, fmt.Errorf("%w: 交付记录无效: %v", ErrInvalidRequest, err)
	}
	for _, family := range req.families() {
		if _, err := siconfi.Load(family, req.Datasets[family]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	tol := s.tolerance.GetTolerance()
	if req.Tolerance != nil {
		tol = *req.Tolerance
	}

	var run *models.AnalysisRun
	err = s.locker.ExecuteWithLock(ctx, lockKey(req.EntityCode, req.FiscalYear), s.lockTTL, func() error {
		now := time.Now()
		run = &models.AnalysisRun{
			EntityCode:      req.EntityCode,
			EntityName:      req.EntityName,
			EntityType:      string(params.EntityType),
			FiscalYear:      params.FiscalYear,
			ReferencePeriod: params.ReferencePeriod,
			Status:          models.RunStatusRunning,
			Families:        req.families(),
			StartedAt:       &now,
			CreatedBy:       req.CreatedBy,
		}
		run.Tolerance, _ = models.ToJSONB(tol)
		if err := s.createRun(ctx, run, req); err != nil {
			return err
		}
		slog.Info("分析开始", "run_id", run.ID, "entity_code", run.EntityCode, "fiscal_year", run.FiscalYear)

		snapshots := make([]models.DatasetSnapshot, 0, len(req.Datasets))
		for _, family := range req.families() {
			snapshots = append(snapshots, models.DatasetSnapshot{
				Family:  family,
				Records: models.RecordsToJSONB(req.Datasets[family]),
			})
		}
		s.evaluateAndStore(ctx, run, params, tol, deliveries, snapshots)
		return nil
	})
	if errors.Is(err, distributed_lock.ErrLockHeld) {
		return nil, fmt.Errorf("实体 %s 年度 %d 的分析正在执行: %w", req.EntityCode, req.FiscalYear, err)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, run.ID)
}

// createRun 在一个事务中保存运行记录与输入快照
func (s *Service) createRun(ctx context.Context, run *models.AnalysisRun, req *AnalysisRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("创建分析运行失败: %w", err)
		}
		snaps := []models.DatasetSnapshot{{
			RunID:    run.ID,
			Family:   DeliveriesSnapshot,
			Records:  models.RecordsToJSONB(req.Deliveries),
			RowCount: len(req.Deliveries),
		}}
		for _, family := range req.families() {
			records := req.Datasets[family]
			snaps = append(snaps, models.DatasetSnapshot{
				RunID:    run.ID,
				Family:   family,
				Records:  models.RecordsToJSONB(records),
				RowCount: len(records),
			})
		}
		if err := tx.Create(&snaps).Error; err != nil {
			return fmt.Errorf("保存数据快照失败: %w", err)
		}
		return nil
	})
}

// evaluateAndStore 执行评估并保存结果；失败与取消同样记录在运行上
func (s *Service) evaluateAndStore(ctx context.Context, run *models.AnalysisRun, params reconcile.Params, tol reconcile.Tolerance,
	deliveries []siconfi.DeliveryRow, snapshots []models.DatasetSnapshot) {
	start := time.Now()
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	availability := siconfi.BuildAvailability(deliveries, params.FiscalYear)
	report, evalErr := s.evaluate(runCtx, run.ID, params, tol, availability, snapshots)

	finished := time.Now()
	run.FinishedAt = &finished
	run.DurationMs = finished.Sub(start).Milliseconds()
	run.Availability, _ = models.ToJSONB(availability)
	run.Tolerance, _ = models.ToJSONB(tol)
	switch {
	case evalErr == nil:
		run.Status = models.RunStatusCompleted
	case errors.Is(evalErr, context.Canceled), errors.Is(evalErr, context.DeadlineExceeded):
		run.Status = models.RunStatusCancelled
		run.ErrorMessage = evalErr.Error()
	default:
		run.Status = models.RunStatusFailed
		run.ErrorMessage = evalErr.Error()
	}

	// 保存结果不受分析超时的影响
	storeCtx := context.WithoutCancel(ctx)
	if err := s.storeResults(storeCtx, run, report); err != nil {
		slog.Error("保存分析结果失败", "run_id", run.ID, "error", err)
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
		s.db.WithContext(storeCtx).Model(&models.AnalysisRun{}).Where("id = ?", run.ID).
			Updates(map[string]interface{}{"status": run.Status, "error_message": run.ErrorMessage})
	}

	if run.Status == models.RunStatusFailed {
		slog.Error("分析失败", "run_id", run.ID, "error", run.ErrorMessage)
	} else {
		logArgs := []interface{}{"run_id", run.ID, "status", run.Status, "duration_ms", run.DurationMs}
		if run.Overall != nil {
			logArgs = append(logArgs, "overall", *run.Overall)
		}
		slog.Info("分析结束", logArgs...)
	}
	if s.metrics != nil {
		s.metrics.RunFinished(run.Status, run.EntityType, run.Overall, finished.Sub(start))
	}
	s.publish(storeCtx, run, report)
}

// evaluate 加载阶段并发解码快照，封存注册表后按顺序执行所有维度
func (s *Service) evaluate(ctx context.Context, runID string, params reconcile.Params, tol reconcile.Tolerance,
	availability map[string]reconcile.AvailabilityInfo, snapshots []models.DatasetSnapshot) (*reconcile.Report, error) {
	ac, err := s.load(ctx, params, availability, snapshots)
	if err != nil {
		return nil, err
	}
	dims, err := s.Dimensions(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.engine(runID, tol).RunAll(ctx, dims, ac)
}

func (s *Service) load(ctx context.Context, params reconcile.Params, availability map[string]reconcile.AvailabilityInfo,
	snapshots []models.DatasetSnapshot) (*reconcile.AnalysisContext, error) {
	reg := reconcile.NewRegistry()
	if err := siconfi.ApplyAvailability(reg, availability); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.loadConcurrency)
	for _, snap := range snapshots {
		snap := snap
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ds, err := siconfi.Load(snap.Family, snap.Records.Records())
			if err != nil {
				return err
			}
			return reg.RegisterDataset(snap.Family, ds)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("加载数据集失败: %w", err)
	}
	reg.Seal()
	return reconcile.NewAnalysisContext(reg, params), nil
}

func (s *Service) engine(runID string, tol reconcile.Tolerance) *reconcile.Engine {
	opts := []reconcile.Option{
		reconcile.WithTolerance(tol),
		reconcile.WithLogger(slog.Default().With("run_id", runID)),
		reconcile.WithRoundingAsPass(s.roundingAsPass),
	}
	if s.metrics != nil {
		opts = append(opts, reconcile.WithObserver(s.metrics))
	}
	return reconcile.NewEngine(opts...)
}

// Dimensions 内置目录加上已启用的脚本规则维度
func (s *Service) Dimensions(ctx context.Context, params reconcile.Params) ([]reconcile.Dimension, error) {
	dims := siconfi.Catalogue(params)
	dx, err := s.scriptDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dx != nil {
		dims = append(dims, *dx)
	}
	return dims, nil
}

func (s *Service) scriptDimension(ctx context.Context) (*reconcile.Dimension, error) {
	var rules []models.ScriptRule
	if err := s.db.WithContext(ctx).Where("is_enabled = ?", true).Order("code").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("查询脚本规则失败: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}
	dim := &reconcile.Dimension{Code: ScriptDimension, Name: "Regras personalizadas"}
	for _, r := range rules {
		rule, err := s.compileRule(&r)
		if err != nil {
			// 编译失败的规则仍占一行，判定为 ERROR
			slog.Warn("脚本规则编译失败", "code", r.Code, "error", err)
			rule = brokenScriptRule(&r, err)
		}
		dim.Rules = append(dim.Rules, rule)
	}
	return dim, nil
}

// brokenScriptRule 无法编译的脚本规则，执行时返回编译错误
func brokenScriptRule(r *models.ScriptRule, compileErr error) reconcile.Rule {
	err := fmt.Errorf("脚本规则无法编译: %w", compileErr)
	return reconcile.Rule{
		Code:        r.Code,
		Description: r.Description,
		Check: func(*reconcile.RuleContext) (reconcile.Result, error) {
			return reconcile.Result{}, err
		},
	}
}

func (s *Service) compileRule(r *models.ScriptRule) (reconcile.Rule, error) {
	scoring, err := reconcile.ParseScoring(r.Scoring)
	if err != nil {
		return reconcile.Rule{}, err
	}
	return s.compiler.Rule(reconcile.ScriptDefinition{
		Code:        r.Code,
		Description: r.Description,
		Source:      r.Source,
		Datasets:    r.Datasets,
		Requires:    r.Requires,
		Scoring:     scoring,
	})
}

// storeResults 保存判定、证据与汇总；report 为空时只更新运行状态
func (s *Service) storeResults(ctx context.Context, run *models.AnalysisRun, report *reconcile.Report) error {
	if report != nil {
		summarize(run, report)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", run.ID).Delete(&models.VerdictRecord{}).Error; err != nil {
			return fmt.Errorf("清理旧判定失败: %w", err)
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&models.EvidenceRecord{}).Error; err != nil {
			return fmt.Errorf("清理旧证据失败: %w", err)
		}
		if report != nil && len(report.Rows) > 0 {
			verdicts, evidence := records(run.ID, report)
			if err := tx.Create(&verdicts).Error; err != nil {
				return fmt.Errorf("保存判定失败: %w", err)
			}
			if len(evidence) > 0 {
				if err := tx.Create(&evidence).Error; err != nil {
					return fmt.Errorf("保存证据失败: %w", err)
				}
			}
		}
		err := tx.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
			"status":         run.Status,
			"overall":        run.Overall,
			"total_rules":    run.TotalRules,
			"passed":         run.Passed,
			"rounding":       run.Rounding,
			"failed":         run.Failed,
			"not_applicable": run.NotApplicable,
			"availability":   run.Availability,
			"dimensions":     run.Dimensions,
			"tolerance":      run.Tolerance,
			"error_message":  run.ErrorMessage,
			"started_at":     run.StartedAt,
			"finished_at":    run.FinishedAt,
			"duration_ms":    run.DurationMs,
		}).Error
		if err != nil {
			return fmt.Errorf("更新分析运行失败: %w", err)
		}
		return nil
	})
}

// summarize 将报告汇总写入运行记录
func summarize(run *models.AnalysisRun, report *reconcile.Report) {
	run.Overall = report.Overall
	run.TotalRules = len(report.Rows)
	run.Passed, run.Rounding, run.Failed, run.NotApplicable = 0, 0, 0, 0
	for _, v := range report.Rows {
		switch v.Status {
		case reconcile.StatusOK:
			run.Passed++
		case reconcile.StatusOKWithRounding:
			run.Rounding++
		case reconcile.StatusError:
			run.Failed++
		case reconcile.StatusNotApplicable:
			run.NotApplicable++
		}
	}
	run.Dimensions = toJSONBArray(report.Dimensions)
}

func records(runID string, report *reconcile.Report) ([]models.VerdictRecord, []models.EvidenceRecord) {
	verdicts := make([]models.VerdictRecord, 0, len(report.Rows))
	var evidence []models.EvidenceRecord
	for i, v := range report.Rows {
		ds, has := report.Evidence[v.Code]
		verdicts = append(verdicts, models.VerdictRecord{
			RunID:       runID,
			Seq:         i,
			Dimension:   v.Dimension,
			Code:        v.Code,
			Status:      string(v.Status),
			Score:       v.Score,
			Description: v.Description,
			Note:        v.Note,
			HasEvidence: has,
		})
		if has {
			evidence = append(evidence, models.EvidenceRecord{
				RunID:    runID,
				Code:     v.Code,
				Name:     ds.Name(),
				Columns:  ds.Columns(),
				Rows:     models.RecordsToJSONB(ds.Records()),
				RowCount: ds.Len(),
			})
		}
	}
	return verdicts, evidence
}

func toJSONBArray(v interface{}) models.JSONBArray {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out models.JSONBArray
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func (s *Service) publish(ctx context.Context, run *models.AnalysisRun, report *reconcile.Report) {
	evt := &event.AnalysisCompletedEvent{
		Type:       event.EventTypeAnalysisCompleted,
		RunID:      run.ID,
		EntityCode: run.EntityCode,
		EntityType: run.EntityType,
		FiscalYear: run.FiscalYear,
		Status:     run.Status,
		Overall:    run.Overall,
		Failed:     run.Failed,
		Error:      run.ErrorMessage,
	}
	if run.FinishedAt != nil {
		evt.FinishedAt = *run.FinishedAt
	}
	if report != nil {
		evt.Dimensions = report.Dimensions
	}
	if err := s.notifier.Publish(ctx, evt); err != nil {
		slog.Warn("发布分析完成事件失败", "run_id", run.ID, "error", err)
	}
}

// Get 查询分析运行及判定，已结束的运行走缓存
func (s *Service) Get(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	hit, err := s.cache.Get(ctx, id, &run)
	if err != nil {
		slog.Warn("读取报告缓存失败", "run_id", id, "error", err)
	}
	if hit {
		return &run, nil
	}

	err = s.db.WithContext(ctx).
		Preload("Verdicts", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询分析运行失败: %w", err)
	}

	if run.Finished() {
		if err := s.cache.Set(ctx, id, &run); err != nil {
			slog.Warn("写入报告缓存失败", "run_id", id, "error", err)
		}
	}
	return &run, nil
}

// Evidence 查询某条规则的证据
func (s *Service) Evidence(ctx context.Context, id, code string) (*models.EvidenceRecord, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	var ev models.EvidenceRecord
	err := s.db.WithContext(ctx).Where("run_id = ? AND code = ?", id, code).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEvidenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询证据失败: %w", err)
	}
	return &ev, nil
}

// List 分页查询分析运行，按创建时间倒序
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.AnalysisRun, int64, error) {
	q.normalize()
	db := s.db.WithContext(ctx).Model(&models.AnalysisRun{})
	if q.EntityCode != "" {
		db = db.Where("entity_code = ?", q.EntityCode)
	}
	if q.FiscalYear > 0 {
		db = db.Where("fiscal_year = ?", q.FiscalYear)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计分析运行失败: %w", err)
	}
	var runs []models.AnalysisRun
	err := db.Order("created_at DESC").Offset((q.Page - 1) * q.Size).Limit(q.Size).Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询分析运行失败: %w", err)
	}
	return runs, total, nil
}

// Rerun 使用已保存的快照重新评估，沿用运行记录并覆盖原有判定
func (s *Service) Rerun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询分析运行失败: %w", err)
	}
	rr, err := s.restore(ctx, &run)
	if err != nil {
		return nil, err
	}

	err = s.locker.ExecuteWithLock(ctx, lockKey(run.EntityCode, run.FiscalYear), s.lockTTL, func() error {
		if err := s.cache.Delete(ctx, id); err != nil {
			slog.Warn("删除报告缓存失败", "run_id", id, "error", err)
		}
		now := time.Now()
		run.Status = models.RunStatusRunning
		run.StartedAt = &now
		run.ErrorMessage = ""
		if err := s.db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
			"status": run.Status, "started_at": run.StartedAt, "error_message": "",
		}).Error; err != nil {
			return fmt.Errorf("更新分析运行失败: %w", err)
		}
		slog.Info("重新执行分析", "run_id", id)
		s.evaluateAndStore(ctx, &run, rr.params, rr.tolerance, rr.deliveries, rr.snapshots)
		return nil
	})
	if errors.Is(err, distributed_lock.ErrLockHeld) {
		return nil, fmt.Errorf("实体 %s 年度 %d 的分析正在执行: %w", run.EntityCode, run.FiscalYear, err)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// RunDimension 对已保存的快照只执行一个维度，结果不持久化
func (s *Service) RunDimension(ctx context.Context, id, code string) (*reconcile.Report, error) {
	var run models.AnalysisRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询分析运行失败: %w", err)
	}
	rr, err := s.restore(ctx, &run)
	if err != nil {
		return nil, err
	}

	dims, err := s.Dimensions(ctx, rr.params)
	if err != nil {
		return nil, err
	}
	var dim *reconcile.Dimension
	for i := range dims {
		if dims[i].Code == code {
			dim = &dims[i]
			break
		}
	}
	if dim == nil {
		return nil, fmt.Errorf("%w: %s", ErrDimensionNotFound, code)
	}

	ac, err := s.load(ctx, rr.params, siconfi.BuildAvailability(rr.deliveries, rr.params.FiscalYear), rr.snapshots)
	if err != nil {
		return nil, err
	}
	eng := s.engine(id, rr.tolerance)
	return reconcile.Assemble(eng.RunDimension(ctx, *dim, ac), eng.Scorer()), nil
}

// restoredRun 从运行记录与快照恢复的评估输入
type restoredRun struct {
	params     reconcile.Params
	tolerance  reconcile.Tolerance
	deliveries []siconfi.DeliveryRow
	snapshots  []models.DatasetSnapshot
}

// restore 从快照恢复参数、容差、交付记录与数据集。容差沿用首次执行时保存的值
func (s *Service) restore(ctx context.Context, run *models.AnalysisRun) (*restoredRun, error) {
	et, err := reconcile.ParseEntityType(run.EntityType)
	if err != nil {
		return nil, err
	}
	rr := &restoredRun{
		params:    reconcile.Params{FiscalYear: run.FiscalYear, EntityType: et, ReferencePeriod: run.ReferencePeriod},
		tolerance: s.tolerance.GetTolerance(),
	}
	if len(run.Tolerance) > 0 {
		if err := models.FromJSONB(run.Tolerance, &rr.tolerance); err != nil {
			return nil, fmt.Errorf("运行记录中的容差无效: %w", err)
		}
	}

	var snaps []models.DatasetSnapshot
	if err := s.db.WithContext(ctx).Where("run_id = ?", run.ID).Order("family").Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("查询数据快照失败: %w", err)
	}
	rr.snapshots = make([]models.DatasetSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Family == DeliveriesSnapshot {
			rr.deliveries, err = siconfi.DecodeDeliveries(snap.Records.Records())
			if err != nil {
				return nil, fmt.Errorf("交付记录快照无效: %w", err)
			}
			continue
		}
		rr.snapshots = append(rr.snapshots, snap)
	}
	return rr, nil
}

func (s *Service) exists(ctx context.Context, id string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.AnalysisRun{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("查询分析运行失败: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
