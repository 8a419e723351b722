// Package observe file: internal/observe/logging.go
package observe

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel 把配置字符串转换为日志级别，无法识别时为 INFO
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger 初始化全局的结构化日志记录器，应在 main 函数的早期调用。
// 日志写到 stderr，stdout 只留给每个文件的迁移完成提示。
func InitLogger(levelStr string) {
	InitLoggerTo(os.Stderr, levelStr)
}

// InitLoggerTo 同 InitLogger，但写到指定的 writer
func InitLoggerTo(w io.Writer, levelStr string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(levelStr),
		AddSource: true, // 添加代码源位置（文件:行号），方便调试
	})
	slog.SetDefault(slog.New(handler))
}
