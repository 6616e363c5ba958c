package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"siconfi-service/service/models"
	"siconfi-service/service/reconcile"
	"siconfi-service/service/siconfi"

	"gorm.io/gorm"
)

// ScriptDimension 脚本规则所在的维度
const ScriptDimension = "DX"

// ErrScriptRuleExists 规则编码已存在
var ErrScriptRuleExists = errors.New("规则编码已存在")

// ScriptRuleRequest 创建脚本规则的请求
type ScriptRuleRequest struct {
	Code        string   `json:"code" example:"DX_00010"`
	Description string   `json:"description"`
	Source      string   `json:"source"`
	Datasets    []string `json:"datasets" example:"msc"`
	Requires    []string `json:"requires" example:"msc"`
	Scoring     string   `json:"scoring" example:"per_period"`
	CreatedBy   string   `json:"created_by,omitempty"`
}

// ScriptRuleService 脚本规则管理
type ScriptRuleService struct {
	db       *gorm.DB
	compiler *reconcile.ScriptCompiler
}

// NewScriptRuleService 创建脚本规则服务
func NewScriptRuleService(db *gorm.DB, compiler *reconcile.ScriptCompiler) *ScriptRuleService {
	return &ScriptRuleService{db: db, compiler: compiler}
}

// Validate 只编译不保存
func (s *ScriptRuleService) Validate(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("%w: 脚本不能为空", ErrInvalidRequest)
	}
	if err := s.compiler.Validate(source); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func validFamilies(names []string) error {
	for _, n := range names {
		if _, ok := siconfi.FamilyByCode(n); !ok {
			return fmt.Errorf("%w: 未知的数据族 %s", ErrInvalidRequest, n)
		}
	}
	return nil
}

// builtinCode 编码是否与内置目录冲突
func builtinCode(code string) bool {
	for _, d := range siconfi.Catalogue(reconcile.Params{}) {
		for _, r := range d.Rules {
			if r.Code == code {
				return true
			}
		}
	}
	return false
}

// Create 校验并保存脚本规则
func (s *ScriptRuleService) Create(ctx context.Context, req *ScriptRuleRequest) (*models.ScriptRule, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: code 不能为空", ErrInvalidRequest)
	}
	if builtinCode(code) {
		return nil, fmt.Errorf("%w: %s 与内置规则冲突", ErrScriptRuleExists, code)
	}
	if err := validFamilies(req.Datasets); err != nil {
		return nil, err
	}
	if err := validFamilies(req.Requires); err != nil {
		return nil, err
	}
	scoring, err := reconcile.ParseScoring(req.Scoring)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.Validate(req.Source); err != nil {
		return nil, err
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ScriptRule{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("查询脚本规则失败: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", ErrScriptRuleExists, code)
	}

	rule := &models.ScriptRule{
		Code:        code,
		Description: req.Description,
		Source:      req.Source,
		Datasets:    req.Datasets,
		Requires:    req.Requires,
		Scoring:     scoring.String(),
		IsEnabled:   true,
		CreatedBy:   req.CreatedBy,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("保存脚本规则失败: %w", err)
	}
	return rule, nil
}

// List 按编码排序列出脚本规则
func (s *ScriptRuleService) List(ctx context.Context) ([]models.ScriptRule, error) {
	var rules []models.ScriptRule
	if err := s.db.WithContext(ctx).Order("code").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("查询脚本规则失败: %w", err)
	}
	return rules, nil
}

// SetEnabled 启用或停用脚本规则
func (s *ScriptRuleService) SetEnabled(ctx context.Context, code string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.ScriptRule{}).Where("code = ?", code).Update("is_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("更新脚本规则失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("脚本规则不存在: %s: %w", code, gorm.ErrRecordNotFound)
	}
	return nil
}
