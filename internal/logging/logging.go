// Package logging 构造 reactorlog 使用的 zap logger。
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 按级别与格式构造 logger。
// format 为 json 时使用生产配置，其余情况使用彩色控制台输出。日志统一写到 stderr。
func New(level string, format string) (*zap.Logger, error) {
	atomicLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var config zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		config = zap.NewProductionConfig()
	case "", "console", "text":
		config = zap.NewDevelopmentConfig()
		config.Development = false
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	default:
		return nil, fmt.Errorf("invalid log format: %s (valid: console, json)", format)
	}

	config.Level = atomicLevel
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ParseLevel 解析日志级别，空串为 info。
func ParseLevel(level string) (zap.AtomicLevel, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	atomicLevel, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level: %s", level)
	}
	return atomicLevel, nil
}
