package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"gopherai-interview/internal/platform/logger"
	"gopherai-interview/internal/platform/mysql"
)

// New opens a sqlite database at path. ":memory:" gives a private in-memory
// database; the pool is pinned to one connection so every query sees it.
func New(ctx context.Context, path string, log *logger.Logger) (*gorm.DB, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir failed: %w", err)
			}
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: mysql.GormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sqlite sql db failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping sqlite failed: %w", err)
	}
	return db, nil
}
