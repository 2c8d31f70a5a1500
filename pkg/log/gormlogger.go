package log

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// NewGormLogger bridges gorm's SQL logging into the global zap logger.
// Record-not-found noise is suppressed; parameters are never logged.
func NewGormLogger() logger.Interface {
	return logger.New(
		&gormWriter{},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}

type gormWriter struct{}

func (w *gormWriter) Printf(format string, args ...interface{}) {
	zap.S().Named("gorm").Infof(format, args...)
}
