/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构
 * @architecture 数据访问层 - 迁移管理
 * @documentReference DESIGN.md
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致
 * @dependencies siconfi-service/service/models, gorm.io/gorm
 * @refs service/models/analysis.go
 */

package database

import (
	"log"

	"siconfi-service/service/models"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 分析运行相关表
	err := db.AutoMigrate(
		&models.AnalysisRun{},
		&models.VerdictRecord{},
		&models.EvidenceRecord{},
		&models.DatasetSnapshot{},
	)
	if err != nil {
		return err
	}

	// 规则与配置
	err = db.AutoMigrate(
		&models.ScriptRule{},
		&models.SystemConfig{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}
