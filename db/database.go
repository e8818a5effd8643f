package db

import (
	"fmt"
	"time"

	"mod-update-notifier/logger"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDatabase opens the SQLite database at dbPath and migrates every model.
func InitDatabase(dbPath string) (*gorm.DB, error) {
	// Configure GORM logger
	newLogger := gormlogger.New(
		zap.NewStdLog(logger.ZapLogger), // Route GORM warnings through zap
		gormlogger.Config{
			SlowThreshold:             time.Second,     // Slow SQL threshold
			LogLevel:                  gormlogger.Warn, // Log level (Warn, Error, Info)
			IgnoreRecordNotFoundError: true,            // Ignore ErrRecordNotFound error
			ParameterizedQueries:      true,            // Keep mod summaries out of the log
			Colorful:                  false,
		},
	)

	// busy_timeout lets the cycle commit wait out CLI writers instead of failing
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	gdb, err := gorm.Open(gormlite.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := gdb.AutoMigrate(&Mod{}, &Server{}, &SubscribedMod{}, &SubscribedAuthor{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return gdb, nil
}
