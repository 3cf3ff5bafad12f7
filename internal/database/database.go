package database

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ctonjob/internal/config"
)

// DefaultSectors 初始行业列表，由 admin CLI 写入。
var DefaultSectors = []string{
	"Informatique",
	"BTP",
	"Commerce",
	"Logistique",
	"Santé",
	"Industrie",
	"Hôtellerie-Restauration",
	"Administration",
}

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	level := logger.Warn
	if strings.EqualFold(logLevel, "debug") {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: NewGormLogger(os.Stdout, level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// NewGormLogger 返回忽略 ErrRecordNotFound 的 GORM 日志器；未找到记录由调用方自行处理。
func NewGormLogger(w io.Writer, level logger.LogLevel) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Migrate runs AutoMigrate for all job board tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SeedSectors inserts missing default sectors and returns how many were created.
func SeedSectors(db *gorm.DB, names []string) (int, error) {
	created := 0
	for _, name := range names {
		var existing Sector
		err := db.Where("name = ?", name).First(&existing).Error
		switch {
		case err == nil:
			continue
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := db.Create(&Sector{Name: name}).Error; err != nil {
				return created, fmt.Errorf("create sector %q: %w", name, err)
			}
			created++
		default:
			return created, fmt.Errorf("query sector %q: %w", name, err)
		}
	}
	return created, nil
}

// IsUniqueViolation reports whether err is a unique constraint violation
// (postgres SQLSTATE 23505 or the sqlite equivalent).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint failed")
}
