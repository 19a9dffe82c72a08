package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/config"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB データベース接続とマイグレーションを実行
func InitDB(cfg config.Database) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := Open(dialector)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifeTTL)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	slog.Info("database migration completed", slog.String("driver", cfg.Driver))

	if cfg.Seed {
		if err := SeedData(db); err != nil {
			return nil, fmt.Errorf("failed to seed data: %w", err)
		}
	}
	return db, nil
}

// Open は TranslateError を有効にして接続する。ユニーク制約違反は gorm.ErrDuplicatedKey になる
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Ping ヘルスチェック用
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func dialectorFor(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = CloudSQLDSN(cfg)
		}
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, errors.New("DATABASE_URL is required for postgres")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

// CloudSQLDSN Cloud SQL の unix ソケット経由で接続する MySQL DSN
func CloudSQLDSN(cfg config.Database) string {
	return fmt.Sprintf("%s:%s@unix(/cloudsql/%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.CloudSQLConn, cfg.Name)
}

// IsUniqueViolation ユニーク制約違反かどうか。TranslateError 非対応のドライバでも判定できるようメッセージも見る
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
