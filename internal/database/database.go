package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/devdash/internal/config"
)

var DB *gorm.DB

// Init opens the database at config.Cfg.DatabasePath and migrates it.
func Init() error {
	db, err := Open(config.Cfg.DatabasePath, logger.Warn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens a SQLite database in WAL mode and migrates the schema.
func Open(dbPath string, level logger.LogLevel) (*gorm.DB, error) {
	if dbDir := filepath.Dir(dbPath); dbDir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&TerminalSession{}, &TerminalEvent{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
