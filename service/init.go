/*
 * @module service/init
 * @description 服务初始化模块，负责配置加载、数据库连接、缓存/锁/事件通道的装配
 * @architecture 分层架构 - 服务层
 * @documentReference DESIGN.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务；Redis/Kafka/MQTT 未配置时降级为进程内实现
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/go-redis/redis/v8
 * @refs service/config/config.go
 */

package service

import (
	"context"
	"log"
	"time"

	"siconfi-service/logger"
	"siconfi-service/service/analysis"
	"siconfi-service/service/cache"
	"siconfi-service/service/cleanup"
	"siconfi-service/service/config"
	"siconfi-service/service/database"
	"siconfi-service/service/distributed_lock"
	"siconfi-service/service/event"
	"siconfi-service/service/metrics"
	"siconfi-service/service/rate_limiter"
	"siconfi-service/service/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                      *gorm.DB
	Config                  *config.Config
	GlobalConfigService     *config.ConfigService
	GlobalAnalysisService   *analysis.Service
	GlobalScriptRuleService *analysis.ScriptRuleService
	GlobalMetrics           *metrics.Metrics
	GlobalCleanupService    *cleanup.ReportCleanupService
	GlobalNotifier          event.Notifier
	// GlobalSubmitLimiter 为空表示不限流
	GlobalSubmitLimiter     rate_limiter.Limiter
)

func init() {
	initConfig()
	initDatabase()
	runMigrations()
	initServices()
}

// initConfig 加载环境变量配置
func initConfig() {
	var err error
	Config, err = config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	logger.InitLogger(Config.LogLevel)
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var err error
	DB, err = gorm.Open(postgres.Open(Config.Database.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// runMigrations 运行数据库迁移
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")
}

// initServices 初始化服务
func initServices() {
	GlobalConfigService = config.NewConfigService(DB, Config)
	GlobalMetrics = metrics.New(prometheus.DefaultRegisterer)

	var (
		lock        distributed_lock.DistributedLock = distributed_lock.NewMemoryLock()
		reportCache cache.ReportCache                = cache.NopReportCache{}
	)
	if Config.Redis.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.NewRedisClient(ctx, Config.Redis.Addr(), Config.Redis.Password, Config.Redis.DB)
		cancel()
		if err != nil {
			log.Printf("Redis不可用，使用进程内锁且不缓存报告: %v", err)
		} else {
			lock = distributed_lock.NewRedisLock(client)
			reportCache = cache.NewRedisReportCache(client, Config.Redis.CacheTTL)
			if n := Config.Analysis.SubmitRateLimit; n > 0 {
				GlobalSubmitLimiter = rate_limiter.NewRedisRateLimiter(client, n, time.Minute)
			}
			log.Println("Redis连接成功")
		}
	}
	if n := Config.Analysis.SubmitRateLimit; n > 0 && GlobalSubmitLimiter == nil {
		GlobalSubmitLimiter = rate_limiter.NewMemoryRateLimiter(n, time.Minute)
	}

	GlobalNotifier = initNotifier()

	GlobalAnalysisService = analysis.NewService(DB,
		analysis.WithNotifier(GlobalNotifier),
		analysis.WithCache(reportCache),
		analysis.WithLock(lock, Config.Analysis.LockTTL),
		analysis.WithMetrics(GlobalMetrics),
		analysis.WithToleranceSource(GlobalConfigService),
		analysis.WithRoundingAsPass(Config.Analysis.RoundingAsPass),
		analysis.WithLoadConcurrency(Config.Analysis.LoadConcurrency),
		analysis.WithTimeout(Config.Analysis.Timeout),
		analysis.WithScriptCompiler(reconcile.NewScriptCompiler(reconcile.WithScriptTimeout(Config.Analysis.ScriptTimeout))),
	)
	GlobalScriptRuleService = analysis.NewScriptRuleService(DB, GlobalAnalysisService.Compiler())

	GlobalCleanupService = cleanup.NewReportCleanupService(DB, GlobalConfigService, lock, reportCache,
		GlobalMetrics, Config.Cleanup.Schedule)
	if Config.Cleanup.Enabled {
		if err := GlobalCleanupService.StartScheduledCleanup(); err != nil {
			log.Printf("启动清理调度器失败: %v", err)
		}
	}
	log.Println("服务初始化完成")
}

// initNotifier 按配置组合事件通道
func initNotifier() event.Notifier {
	var notifiers event.MultiNotifier
	if len(Config.Kafka.Brokers) > 0 {
		notifiers = append(notifiers, event.NewKafkaNotifier(Config.Kafka.Brokers, Config.Kafka.Topic))
		log.Printf("Kafka事件通道已启用: topic=%s", Config.Kafka.Topic)
	}
	if Config.MQTT.Broker != "" {
		n, err := event.NewMQTTNotifier(event.MQTTOptions{
			Broker:   Config.MQTT.Broker,
			ClientID: Config.MQTT.ClientID,
			Username: Config.MQTT.Username,
			Password: Config.MQTT.Password,
			Topic:    Config.MQTT.Topic,
			QoS:      Config.MQTT.QoS,
		})
		if err != nil {
			log.Printf("MQTT事件通道不可用: %v", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}
	if len(notifiers) == 0 {
		return event.NopNotifier{}
	}
	return notifiers
}

// Shutdown 停止后台任务并关闭外部连接
func Shutdown() {
	if GlobalCleanupService != nil {
		GlobalCleanupService.StopScheduledCleanup()
	}
	if GlobalNotifier != nil {
		if err := GlobalNotifier.Close(); err != nil {
			log.Printf("关闭事件通道失败: %v", err)
		}
	}
}
