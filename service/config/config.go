/*
 * @module service/config/config
 * @description 进程级配置，从环境变量加载
 * @architecture 配置层
 * @documentReference DESIGN.md
 * @stateFlow 环境变量 -> Config -> 各服务构造参数
 * @rules 所有配置项都有默认值；Redis/Kafka/MQTT 地址为空表示关闭对应功能
 * @dependencies github.com/caarlos0/env/v11
 * @refs service/init.go, config_service.go
 */

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 服务配置
type Config struct {
	ListenPort  int    `env:"LISTEN_PORT" envDefault:"80"`
	BaseContext string `env:"BASE_CONTEXT"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"debug"`

	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	MQTT     MQTTConfig     `envPrefix:"MQTT_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
	Analysis AnalysisConfig `envPrefix:"ANALYSIS_"`
	Cleanup  CleanupConfig  `envPrefix:"CLEANUP_"`
}

// DatabaseConfig 数据库配置，URL 非空时优先使用
type DatabaseConfig struct {
	URL      string `env:"URL"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"NAME" envDefault:"postgres"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	Schema   string `env:"SCHEMA" envDefault:"public"`
	TimeZone string `env:"TIMEZONE" envDefault:"America/Sao_Paulo"`
}

// DSN 构造 postgres 连接字符串
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Schema, c.TimeZone)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host     string        `env:"HOST"`
	Port     int           `env:"PORT" envDefault:"6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

// Enabled 是否配置了 Redis
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr Redis 地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig Kafka 事件发布配置
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"siconfi.analysis.completed"`
}

// MQTTConfig MQTT 事件发布配置
type MQTTConfig struct {
	Broker   string `env:"BROKER"`
	ClientID string `env:"CLIENT_ID" envDefault:"siconfi-service"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Topic    string `env:"TOPIC" envDefault:"siconfi/analysis/completed"`
	QoS      byte   `env:"QOS" envDefault:"1"`
}

// PubSubConfig dapr 订阅配置
type PubSubConfig struct {
	Name  string `env:"NAME" envDefault:"pubsub"`
	Topic string `env:"TOPIC" envDefault:"siconfi-analysis-requests"`
	Route string `env:"ROUTE" envDefault:"/events/analysis-requests"`
}

// AnalysisConfig 对账引擎配置
type AnalysisConfig struct {
	PrimaryTolerance  float64       `env:"PRIMARY_TOLERANCE" envDefault:"0.01"`
	RoundingTolerance float64       `env:"ROUNDING_TOLERANCE" envDefault:"1.0"`
	RoundingAsPass    bool          `env:"ROUNDING_AS_PASS" envDefault:"true"`
	LoadConcurrency   int           `env:"LOAD_CONCURRENCY" envDefault:"4"`
	LockTTL           time.Duration `env:"LOCK_TTL" envDefault:"10m"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"5m"`
	// ScriptTimeout 脚本规则编译或单次调用的时限
	ScriptTimeout time.Duration `env:"SCRIPT_TIMEOUT" envDefault:"10s"`
	// SubmitRateLimit 每个客户端每分钟可提交的分析数，0 表示不限流
	SubmitRateLimit int `env:"SUBMIT_RATE_LIMIT" envDefault:"0"`
}

// CleanupConfig 过期分析清理配置
type CleanupConfig struct {
	RetentionDays int    `env:"RETENTION_DAYS" envDefault:"90"`
	Schedule      string `env:"SCHEDULE" envDefault:"0 0 3 * * *"`
	Enabled       bool   `env:"ENABLED" envDefault:"true"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	a := c.Analysis
	if a.PrimaryTolerance < 0 || a.RoundingTolerance < 0 {
		return fmt.Errorf("容差不能为负数")
	}
	if a.RoundingTolerance != 0 && a.RoundingTolerance < a.PrimaryTolerance {
		return fmt.Errorf("舍入容差(%v)不能小于主容差(%v)", a.RoundingTolerance, a.PrimaryTolerance)
	}
	if a.LoadConcurrency < 1 {
		return fmt.Errorf("加载并发数必须大于 0")
	}
	if a.ScriptTimeout <= 0 {
		return fmt.Errorf("脚本超时必须大于 0")
	}
	if a.SubmitRateLimit < 0 {
		return fmt.Errorf("提交限流不能为负数")
	}
	if c.Cleanup.RetentionDays < 1 {
		return fmt.Errorf("保留天数必须大于 0")
	}
	return nil
}
