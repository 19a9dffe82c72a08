package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup format が "text" ならテキスト、それ以外は JSON の slog.Logger を返す
func Setup(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupDefault グローバルロガーとして設定する。w が nil なら os.Stdout
func SetupDefault(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, format, level)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel 不明な値は info
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
