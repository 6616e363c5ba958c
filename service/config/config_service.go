/*
 * @module service/config/config_service
 * @description 运行期配置服务：数据库中的配置项覆盖环境变量默认值
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 服务调用 -> 缓存 -> 数据库 -> 环境变量默认值
 * @rules 未知配置键拒绝写入；取值无法解析时回退到默认值
 * @dependencies siconfi-service/service/models, gorm.io/gorm, github.com/spf13/cast
 * @refs config.go, service/cleanup/report_cleanup_service.go
 */

package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"siconfi-service/service/models"
	"siconfi-service/service/reconcile"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 可在运行期调整的配置键
const (
	ConfigKeyRetentionDays     = "analysis.retention_days"
	ConfigKeyPrimaryTolerance  = "analysis.primary_tolerance"
	ConfigKeyRoundingTolerance = "analysis.rounding_tolerance"
)

var (
	// ErrUnknownConfig 未知的配置项
	ErrUnknownConfig = errors.New("未知的配置项")
	// ErrInvalidConfigValue 配置值无效
	ErrInvalidConfigValue = errors.New("配置值无效")
)

type configDef struct {
	description string
	valueType   string
	def         func(*Config) string
	validate    func(string) error
}

func nonNegativeFloat(v string) error {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fmt.Errorf("不是有效的数值: %s", v)
	}
	if f < 0 {
		return fmt.Errorf("不能为负数: %s", v)
	}
	return nil
}

var configDefs = map[string]configDef{
	ConfigKeyRetentionDays: {
		description: "分析结果保存天数",
		valueType:   "int",
		def:         func(c *Config) string { return cast.ToString(c.Cleanup.RetentionDays) },
		validate: func(v string) error {
			n, err := cast.ToIntE(v)
			if err != nil || n < 1 {
				return fmt.Errorf("保存天数必须是正整数: %s", v)
			}
			return nil
		},
	},
	ConfigKeyPrimaryTolerance: {
		description: "数值比较主容差",
		valueType:   "float",
		def:         func(c *Config) string { return cast.ToString(c.Analysis.PrimaryTolerance) },
		validate:    nonNegativeFloat,
	},
	ConfigKeyRoundingTolerance: {
		description: "舍入容差，差额在主容差与此值之间记为 OK_WITH_ROUNDING",
		valueType:   "float",
		def:         func(c *Config) string { return cast.ToString(c.Analysis.RoundingTolerance) },
		validate:    nonNegativeFloat,
	},
}

// ConfigService 配置服务
type ConfigService struct {
	db    *gorm.DB
	cfg   *Config
	mu    sync.RWMutex
	cache map[string]string
}

// NewConfigService 创建配置服务实例
func NewConfigService(db *gorm.DB, cfg *Config) *ConfigService {
	return &ConfigService{
		db:    db,
		cfg:   cfg,
		cache: make(map[string]string),
	}
}

// GetSystemConfig 获取配置值，数据库中没有时返回默认值
func (s *ConfigService) GetSystemConfig(key string) (string, error) {
	def, ok := configDefs[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConfig, key)
	}

	s.mu.RLock()
	v, cached := s.cache[key]
	s.mu.RUnlock()
	if cached {
		return v, nil
	}

	var item models.SystemConfig
	err := s.db.Where("key = ?", key).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		v = def.def(s.cfg)
	case err != nil:
		return "", fmt.Errorf("查询配置失败: %w", err)
	default:
		v = item.Value
	}

	s.mu.Lock()
	s.cache[key] = v
	s.mu.Unlock()
	return v, nil
}

// SetSystemConfig 设置配置值
func (s *ConfigService) SetSystemConfig(key, value string) error {
	def, ok := configDefs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConfig, key)
	}
	if err := def.validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfigValue, err)
	}

	var item models.SystemConfig
	err := s.db.Where("key = ?", key).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = models.SystemConfig{Key: key, Value: value, Description: def.description}
		err = s.db.Create(&item).Error
	case err != nil:
		return fmt.Errorf("查询配置失败: %w", err)
	default:
		err = s.db.Model(&item).Update("value", value).Error
	}
	if err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// GetAllSystemConfigs 获取所有配置项（含默认值）
func (s *ConfigService) GetAllSystemConfigs() ([]models.SystemConfigItem, error) {
	keys := make([]string, 0, len(configDefs))
	for k := range configDefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]models.SystemConfigItem, 0, len(keys))
	for _, k := range keys {
		v, err := s.GetSystemConfig(k)
		if err != nil {
			return nil, err
		}
		items = append(items, models.SystemConfigItem{
			Key:         k,
			Value:       v,
			Description: configDefs[k].description,
			ValueType:   configDefs[k].valueType,
		})
	}
	return items, nil
}

// GetRetentionDays 获取分析结果保存天数
func (s *ConfigService) GetRetentionDays() int {
	v, err := s.GetSystemConfig(ConfigKeyRetentionDays)
	if err != nil {
		return s.cfg.Cleanup.RetentionDays
	}
	n, err := cast.ToIntE(v)
	if err != nil || n < 1 {
		return s.cfg.Cleanup.RetentionDays
	}
	return n
}

// GetTolerance 获取当前容差策略
func (s *ConfigService) GetTolerance() reconcile.Tolerance {
	t := reconcile.Tolerance{
		Primary:  s.cfg.Analysis.PrimaryTolerance,
		Rounding: s.cfg.Analysis.RoundingTolerance,
	}
	if v, err := s.GetSystemConfig(ConfigKeyPrimaryTolerance); err == nil {
		if f, err := cast.ToFloat64E(v); err == nil && f >= 0 {
			t.Primary = f
		}
	}
	if v, err := s.GetSystemConfig(ConfigKeyRoundingTolerance); err == nil {
		if f, err := cast.ToFloat64E(v); err == nil && f >= 0 {
			t.Rounding = f
		}
	}
	return t
}

// ClearCache 清除配置缓存
func (s *ConfigService) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}
