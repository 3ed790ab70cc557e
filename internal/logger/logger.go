// Package logger provides structured logging infrastructure for the application.
// It contains no business logic.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/stagetrack/internal/config"
)

// Logger wraps zap's sugared logger for key/value logging.
type Logger struct {
	*zap.SugaredLogger

	file *os.File // set only on the root logger that opened it
}

// New creates a logger writing to stderr and, when cfg.LogFile is set, appending
// to that file. The log directory must be writable or New fails.
func New(cfg *config.Config) (*Logger, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	consoleEncoder := zapcore.NewJSONEncoder(productionEncoderConfig())
	if cfg.IsDevelopment() {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devCfg)
	}

	var logFile *os.File
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.LogFile != "" {
		path, err := filepath.Abs(cfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve log file: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("write to the %q directory failed, check permissions or change LOG_FILE: %w", filepath.Dir(path), err)
		}
		fileEncoder := zapcore.NewConsoleEncoder(fileEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.Lock(f), level))
		logFile = f
	}

	return &Logger{SugaredLogger: zap.New(zapcore.NewTee(cores...)).Sugar(), file: logFile}, nil
}

// NewWithCore wraps an existing core. Tests pass an observer core here.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Close flushes buffered entries and closes the log file, if one was opened.
// Children created with With share the file; close only the root logger.
func (l *Logger) Close() error {
	_ = l.Sync() // fails on a terminal stderr
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// ParseLevel maps configured level names onto zap levels.
// WARNING and CRITICAL are accepted as aliases of WARN and ERROR.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR", "CRITICAL":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

func productionEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("<2006-01-02 15:04:05>")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " "
	return cfg
}
