// Package observability builds the zap logger shared by the commands.
package observability

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// FormatConsole renders human-readable log lines.
	FormatConsole = "console"
	// FormatJSON renders one JSON object per log line.
	FormatJSON = "json"

	defaultMaxSizeMegabytes = 10
	defaultMaxBackups       = 3
	defaultMaxAgeDays       = 28
)

// LoggerConfig configures NewLogger. File, when set, receives JSON logs rotated by size.
type LoggerConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	Name       string
	Output     io.Writer
}

// NewLogger builds a logger writing to Output (stderr by default) and, when configured,
// to a rotating log file. An unknown level falls back to info.
func NewLogger(configuration LoggerConfig) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(configuration.Level)))); err != nil || configuration.Level == "" {
		level.SetLevel(zap.InfoLevel)
	}

	output := configuration.Output
	if output == nil {
		output = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(configuration.Format), zapcore.Lock(zapcore.AddSync(output)), level),
	}

	if configuration.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   configuration.File,
			MaxSize:    valueOrDefault(configuration.MaxSize, defaultMaxSizeMegabytes),
			MaxBackups: valueOrDefault(configuration.MaxBackups, defaultMaxBackups),
			MaxAge:     valueOrDefault(configuration.MaxAge, defaultMaxAgeDays),
			Compress:   configuration.Compress,
		})
		cores = append(cores, zapcore.NewCore(newEncoder(FormatJSON), fileWriter, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	if configuration.Name != "" {
		logger = logger.Named(configuration.Name)
	}
	return logger
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(format, FormatConsole) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func valueOrDefault(value int, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
