/*
 * @module service/models/analysis
 * @description 对账分析相关模型：分析运行、规则判定、证据、数据集快照
 * @architecture 分层架构 - 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow pending -> running -> completed/failed/cancelled
 * @rules 判定记录的 Seq 保持报告顺序；快照保存原始记录以便重跑
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/lib/pq
 * @refs service/analysis/analysis_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// 分析运行状态
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// AnalysisRun 一次对账分析运行
type AnalysisRun struct {
	ID              string         `gorm:"type:uuid;primary_key" json:"id"`
	EntityCode      string         `gorm:"not null;size:20;index:idx_run_entity_year" json:"entity_code"` // IBGE 编码
	EntityName      string         `gorm:"size:200" json:"entity_name"`
	EntityType      string         `gorm:"not null;size:20" json:"entity_type"` // STATE/MUNICIPALITY
	FiscalYear      int            `gorm:"not null;index:idx_run_entity_year" json:"fiscal_year"`
	ReferencePeriod int            `gorm:"default:0" json:"reference_period"`
	Status          string         `gorm:"not null;size:20;default:'pending'" json:"status"`
	Overall         *float64       `json:"overall"`
	TotalRules      int            `gorm:"default:0" json:"total_rules"`
	Passed          int            `gorm:"default:0" json:"passed"`
	Rounding        int            `gorm:"default:0" json:"rounding"`
	Failed          int            `gorm:"default:0" json:"failed"`
	NotApplicable   int            `gorm:"default:0" json:"not_applicable"`
	Families        pq.StringArray `gorm:"type:text[]" json:"families"` // 已加载的数据族
	Availability    JSONB          `gorm:"type:jsonb" json:"availability"`
	Dimensions      JSONBArray     `gorm:"type:jsonb" json:"dimensions"`
	Tolerance       JSONB          `gorm:"type:jsonb" json:"tolerance"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt       *time.Time     `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at"`
	DurationMs      int64          `gorm:"default:0" json:"duration_ms"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	CreatedBy       string         `gorm:"not null;default:'system';size:100" json:"created_by"`
	UpdatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy       string         `gorm:"not null;default:'system';size:100" json:"updated_by"`

	Verdicts []VerdictRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"verdicts,omitempty"`
}

// BeforeCreate 创建前钩子
func (r *AnalysisRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedBy == "" {
		r.CreatedBy = "system"
	}
	if r.UpdatedBy == "" {
		r.UpdatedBy = "system"
	}
	return nil
}

// Finished 运行是否已结束
func (r *AnalysisRun) Finished() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// VerdictRecord 单条规则判定
type VerdictRecord struct {
	ID          string    `gorm:"type:uuid;primary_key" json:"id"`
	RunID       string    `gorm:"type:uuid;not null;index" json:"run_id"`
	Seq         int       `gorm:"not null" json:"seq"`
	Dimension   string    `gorm:"not null;size:20" json:"dimension"`
	Code        string    `gorm:"not null;size:50" json:"dimension_code"`
	Status      string    `gorm:"not null;size:20;index" json:"status"`
	Score       *float64  `json:"score"`
	Description string    `gorm:"type:text" json:"description"`
	Note        string    `gorm:"type:text" json:"note"`
	HasEvidence bool      `gorm:"default:false" json:"has_evidence"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate 创建前钩子
func (v *VerdictRecord) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// EvidenceRecord 规则证据表
type EvidenceRecord struct {
	ID        string         `gorm:"type:uuid;primary_key" json:"id"`
	RunID     string         `gorm:"type:uuid;not null;uniqueIndex:idx_evidence_run_code" json:"run_id"`
	Code      string         `gorm:"not null;size:50;uniqueIndex:idx_evidence_run_code" json:"dimension_code"`
	Name      string         `gorm:"size:100" json:"name"`
	Columns   pq.StringArray `gorm:"type:text[]" json:"columns"`
	Rows      JSONBArray     `gorm:"type:jsonb" json:"rows"`
	RowCount  int            `gorm:"default:0" json:"row_count"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate 创建前钩子
func (e *EvidenceRecord) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// DatasetSnapshot 分析输入数据快照，重跑时从此处读取
type DatasetSnapshot struct {
	ID        string     `gorm:"type:uuid;primary_key" json:"id"`
	RunID     string     `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_run_family" json:"run_id"`
	Family    string     `gorm:"not null;size:50;uniqueIndex:idx_snapshot_run_family" json:"family"`
	Records   JSONBArray `gorm:"type:jsonb" json:"records"`
	RowCount  int        `gorm:"default:0" json:"row_count"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate 创建前钩子
func (s *DatasetSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// ScriptRule 用户自定义的脚本规则，归入 DX 维度
type ScriptRule struct {
	ID          string         `gorm:"type:uuid;primary_key" json:"id"`
	Code        string         `gorm:"not null;size:50;uniqueIndex" json:"code"`
	Description string         `gorm:"type:text" json:"description"`
	Source      string         `gorm:"type:text;not null" json:"source"`
	Datasets    pq.StringArray `gorm:"type:text[]" json:"datasets"`
	Requires    pq.StringArray `gorm:"type:text[]" json:"requires"`
	Scoring     string         `gorm:"not null;size:20;default:'per_period'" json:"scoring"` // per_period/single_shot
	IsEnabled   bool           `gorm:"not null;default:true" json:"is_enabled"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy   string         `gorm:"not null;default:'system';size:100" json:"created_by"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy   string         `gorm:"not null;default:'system';size:100" json:"updated_by"`
}

// BeforeCreate 创建前钩子
func (s *ScriptRule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedBy == "" {
		s.CreatedBy = "system"
	}
	if s.UpdatedBy == "" {
		s.UpdatedBy = "system"
	}
	return nil
}

// BeforeUpdate 更新前钩子
func (s *ScriptRule) BeforeUpdate(tx *gorm.DB) error {
	if s.UpdatedBy == "" {
		s.UpdatedBy = "system"
	}
	return nil
}
