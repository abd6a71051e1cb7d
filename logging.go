package main

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logMaxSizeMB is the size at which the log file is rotated into a backup
const logMaxSizeMB = 5

// logLevels maps the accepted --change-level values to zap levels.
// CRITICAL has no zap equivalent, DPanic sits between Error and Panic and
// does not panic in a production logger.
var logLevels = map[string]zapcore.Level{
	"DEBUG":    zapcore.DebugLevel,
	"INFO":     zapcore.InfoLevel,
	"WARNING":  zapcore.WarnLevel,
	"ERROR":    zapcore.ErrorLevel,
	"CRITICAL": zapcore.DPanicLevel,
}

// parseLogLevel returns the level for name, case-insensitively. ok is false
// for unrecognized names, which callers ignore.
func parseLogLevel(name string) (zapcore.Level, bool) {
	level, ok := logLevels[strings.ToUpper(strings.TrimSpace(name))]
	return level, ok
}

// levelName renders a zap level with the names used by --change-level
func levelName(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "CRITICAL"
	default:
		return l.CapitalString()
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(levelName(l))
}

func logEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// newLogSink opens path in append mode. Rotated backups are never pruned or
// compressed, so no log line is lost.
func newLogSink(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: 0,
		MaxAge:     0,
		Compress:   false,
	}
}

// newLogger builds the run logger on top of newLogSink
func newLogger(path string, level zap.AtomicLevel) (*zap.Logger, func()) {
	sink := newLogSink(path)

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(logEncoderConfig()),
		zapcore.AddSync(sink),
		level,
	)
	logger := zap.New(core, zap.AddCaller()).Named("emlscan")

	return logger, func() {
		_ = logger.Sync()
		_ = sink.Close()
	}
}
