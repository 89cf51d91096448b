// Package logging 构建运行时使用的 zap 日志器
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tangzhangming/novacore/internal/config"
	"github.com/tangzhangming/novacore/internal/errors"
)

// New 按配置构建日志器
//
// json 格式使用生产配置，console 格式使用开发配置。
func New(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if errors.ColorsEnabled() {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Development = cfg.Development
	zc.DisableStacktrace = !cfg.Development
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}

// OrNop 为 nil 的日志器返回空日志器
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// InstallFatalHook 让致命错误在进程退出前写入日志
func InstallFatalHook(l *zap.Logger) {
	errors.SetFatalLogHook(func(e *errors.FatalError) {
		l.Error("fatal invariant violation",
			zap.String("code", e.Code),
			zap.String("message", e.Message))
		_ = l.Sync()
	})
}
