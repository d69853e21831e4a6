// Package logging 基于 log/slog + tint 的彩色结构化日志
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup 按配置的级别初始化全局 slog（debug/info/warn/error，默认 info）
func Setup(level string) {
	SetupWithWriter(os.Stderr, ParseLevel(level))
}

// SetupWithWriter 指定输出目标与级别
func SetupWithWriter(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			AddSource:  level == slog.LevelDebug,
		}),
	))
}

// ParseLevel 解析日志级别字符串
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
