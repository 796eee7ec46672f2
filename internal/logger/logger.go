// 包 logger：统一初始化与获取日志器；通过 LOG_LEVEL / LOG_FORMAT 控制级别与输出格式
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// 进程级日志器；解析请求在多个 goroutine 中并发读取
var current atomic.Pointer[slog.Logger]

// ParseLevel：debug/warn/error 之外（含空值）一律为 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Setup：按环境变量初始化默认日志器，输出到标准错误
func Setup() *slog.Logger {
	return SetupWriter(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// SetupWriter：指定输出目标初始化（命令行工具与测试复用）
// 约束：format 为 json 时输出 JSON，其余为文本格式
func SetupWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	current.Store(l)
	return l
}

// L：获取默认日志器；未初始化时按环境变量初始化
func L() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return Setup()
}
