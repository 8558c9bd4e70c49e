package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	mu          sync.Mutex
	globalSugar *zap.SugaredLogger
	globalBase  *zap.Logger
)

type callIDKey struct{}

// Init initializes a global zap logger. The env can be "production" or "development" (default).
// It also redirects the stdlib log output to zap so existing log.Printf calls are captured.
func Init(env string) (*zap.SugaredLogger, error) {
	mu.Lock()
	defer mu.Unlock()
	if err := initLocked(env); err != nil {
		return nil, err
	}
	return globalSugar, nil
}

// initLocked builds the global logger once. mu must be held.
func initLocked(env string) error {
	if globalSugar != nil && globalBase != nil {
		return nil
	}

	var cfg zap.Config
	if strings.EqualFold(env, "prod") || strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	base, err := cfg.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(base)
	_ = zap.RedirectStdLog(base)

	globalBase = base
	globalSugar = base.Sugar()
	return nil
}

// Base returns the base *zap.Logger (non-sugared). It is safe to call from
// any goroutine, including while Init runs.
func Base() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if globalBase == nil {
		if err := initLocked(os.Getenv("LOG_ENV")); err != nil {
			base, _ := zap.NewDevelopment()
			globalBase = base
			globalSugar = base.Sugar()
		}
	}
	return globalBase
}

// ForCall returns a child logger tagged with the call id.
func ForCall(callID string) *zap.Logger {
	return Base().With(zap.String("call_id", callID))
}

// WithCallID stores the call id in ctx so the context helpers below tag it.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

func fromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if callID, ok := ctx.Value(callIDKey{}).(string); ok && callID != "" {
			return ForCall(callID)
		}
	}
	return Base()
}

// Debug logs with context and fields.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	fromContext(ctx).Debug(msg, fields...)
}

// Info logs with context and fields.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	fromContext(ctx).Info(msg, fields...)
}

// Warn logs with context and fields.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	fromContext(ctx).Warn(msg, fields...)
}

// Error logs with context and fields.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	fromContext(ctx).Error(msg, fields...)
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.Lock()
	base := globalBase
	mu.Unlock()
	if base != nil {
		_ = base.Sync()
	}
}

// GORMWriter is a Writer adapter for GORM logger that writes to zap logger
type GORMWriter struct{}

// Printf implements gorm.io/gorm/logger.Writer interface
func (w GORMWriter) Printf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	msg = strings.TrimRight(msg, "\r\n")
	Base().Warn(msg, zap.String("component", "gorm"))
}

// NewGORMWriter creates a new GORM writer adapter
func NewGORMWriter() GORMWriter {
	return GORMWriter{}
}
