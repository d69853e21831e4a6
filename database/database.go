package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"spnd/config"
	"spnd/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置建立数据库连接并完成迁移
// 返回的 *gorm.DB 由调用方持有并注入各组件，进程退出前调用 Close
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := Migrate(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	slog.Info("数据库初始化成功", "driver", cfg.Driver)
	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = "data/spnd.db"
		}
		// 内存库（file::memory: / mode=memory）不需要目录
		if !strings.Contains(path, "memory") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("创建数据库目录失败: %w", err)
			}
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
}

// newLogger 根据配置建立 GORM Logger
func newLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "info":
		logLevel = logger.Info
	case "warn":
		logLevel = logger.Warn
	case "error":
		logLevel = logger.Error
	case "silent":
		logLevel = logger.Silent
	default:
		logLevel = logger.Warn
	}
	return logger.Default.LogMode(logLevel)
}

// Migrate 自动迁移数据表并初始化默认类别
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Income{},
		&models.Expense{},
		&models.SharedBudget{},
		&models.SharedBudgetParticipant{},
		&models.ExpenseCategory{},
		&models.IncomeCategory{},
	); err != nil {
		return err
	}
	return seedCategories(db)
}

// seedCategories 初始化默认收支类别（仅当表为空时）
func seedCategories(db *gorm.DB) error {
	var catCount int64
	if err := db.Model(&models.ExpenseCategory{}).Count(&catCount).Error; err != nil {
		return err
	}
	if catCount == 0 {
		// 默认类别对应的颜色（与前端 CSS 保持一致）
		colorMap := map[string]string{
			models.CategoryFood:          "#ef4444",
			models.CategoryTransport:     "#3b82f6",
			models.CategoryShopping:      "#a855f7",
			models.CategoryEntertainment: "#ec4899",
			models.CategoryMedical:       "#10b981",
			models.CategoryEducation:     "#f59e0b",
			models.CategoryHousing:       "#14b8a6",
			models.CategorySharedBudget:  "#0ea5e9",
		}
		var cats []models.ExpenseCategory
		for i, name := range models.GetCategories() {
			color := colorMap[name]
			if color == "" {
				color = "#64748b"
			}
			cats = append(cats, models.ExpenseCategory{Name: name, Sort: (i + 1) * 10, Color: color})
		}
		if err := db.Create(&cats).Error; err != nil {
			return err
		}
	}

	var incomeCatCount int64
	if err := db.Model(&models.IncomeCategory{}).Count(&incomeCatCount).Error; err != nil {
		return err
	}
	if incomeCatCount == 0 {
		incomeCats := []models.IncomeCategory{
			{Name: "工资", Sort: 10, Color: "#10b981"},
			{Name: "奖金", Sort: 20, Color: "#3b82f6"},
			{Name: "理财", Sort: 30, Color: "#a855f7"},
			{Name: "兼职", Sort: 40, Color: "#f59e0b"},
			{Name: "其他", Sort: 50, Color: "#64748b"},
		}
		if err := db.Create(&incomeCats).Error; err != nil {
			return err
		}
	}
	return nil
}
