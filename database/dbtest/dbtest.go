// Package dbtest はテスト用のインメモリ SQLite データベースを提供する
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/Kousuke-irie/campus-market-backend/database"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var seq atomic.Int64

// New マイグレーション済みの空 DB を返す。テスト終了時に閉じる
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&_pragma=foreign_keys(1)", seq.Add(1))
	db, err := database.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// :memory: は接続ごとに別 DB になるため 1 本に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewSeeded カテゴリの初期データ入り
func NewSeeded(t testing.TB) *gorm.DB {
	t.Helper()
	db := New(t)
	if err := database.SeedData(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}
