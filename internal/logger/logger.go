// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger wraps log/slog with AEFS's severity vocabulary (TRACE
// below slog's DEBUG, plus an OFF level that silences everything) and a
// choice of plain-text or JSON output, mirroring the teacher's structured
// logging surface.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aefs/aefs/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom severities. slog's builtin levels (Debug=-4, Info=0, Warn=4,
// Error=8) leave room below Debug and above Error for TRACE and OFF.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

const timeFormat = "01/02/2006 15:04:05.000000"

func levelName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return "TRACE"
	case level < LevelInfo:
		return "DEBUG"
	case level < LevelWarn:
		return "INFO"
	case level < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// loggerFactory owns the destination (file, syslog writer, or stderr)
// and format defaultLogger is built from, so a later InitLogFile or
// SetLogFormat call can rebuild it in place.
type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           cfg.LogSeverity
	logRotateConfig cfg.LogRotateLoggingConfig
}

var defaultLoggerFactory = &loggerFactory{
	format: "text",
	level:  cfg.InfoLogSeverity,
}

var defaultLogger *slog.Logger

func init() {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
}

// createJsonOrTextHandler builds a handler writing to w, renaming slog's
// builtin attrs to the teacher's vocabulary (time, severity, message) and
// prefixing every message with prefix.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			t, ok := a.Value.Any().(time.Time)
			if !ok {
				break
			}
			if f.format == "text" {
				a.Key = "time"
				a.Value = slog.StringValue(t.Format(timeFormat))
			} else {
				a.Key = "timestamp"
				a.Value = slog.GroupValue(
					slog.Int64("seconds", t.Unix()),
					slog.Int64("nanos", int64(t.Nanosecond())),
				)
			}
		case slog.LevelKey:
			if level, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(levelName(level))
			}
			a.Key = "severity"
		case slog.MessageKey:
			a.Value = slog.StringValue(prefix + a.Value.String())
			a.Key = "message"
		}
		return a
	}
	opts := &slog.HandlerOptions{Level: programLevel, ReplaceAttr: replace}
	if f.format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// setLoggingLevel maps a cfg.LogSeverity onto programLevel, the live
// level gate every handler built from this factory shares.
func setLoggingLevel(level cfg.LogSeverity, programLevel *slog.LevelVar) {
	switch level {
	case cfg.TraceLogSeverity:
		programLevel.Set(LevelTrace)
	case cfg.DebugLogSeverity:
		programLevel.Set(LevelDebug)
	case cfg.WarningLogSeverity:
		programLevel.Set(LevelWarn)
	case cfg.ErrorLogSeverity:
		programLevel.Set(LevelError)
	case cfg.OffLogSeverity:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

// InitLogFile points the default logger at loggingConfig's destination:
// a lumberjack-rotated file when FilePath is set, otherwise unchanged
// (stderr). It is not concurrency-safe against the Tracef/.../Errorf
// family and is meant to run once during startup.
func InitLogFile(loggingConfig cfg.LoggingConfig) error {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(loggingConfig.Severity, programLevel)

	var w io.Writer = os.Stderr
	var file *os.File
	if loggingConfig.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   string(loggingConfig.FilePath),
			MaxSize:    loggingConfig.LogRotate.MaxFileSizeMB,
			MaxBackups: loggingConfig.LogRotate.BackupFileCount,
			Compress:   loggingConfig.LogRotate.Compress,
		}
		async := NewAsyncLogger(lj, 1024)
		w = async

		f, err := os.OpenFile(string(loggingConfig.FilePath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file %q: %w", loggingConfig.FilePath, err)
		}
		file = f
	}

	defaultLoggerFactory = &loggerFactory{
		file:            file,
		format:          loggingConfig.Format,
		level:           loggingConfig.Severity,
		logRotateConfig: loggingConfig.LogRotate,
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

// SetLogFormat overrides the output format ("text" or anything else,
// which is treated as "json") of the default logger in place.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format

	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)

	var w io.Writer = os.Stderr
	if defaultLoggerFactory.file != nil {
		w = defaultLoggerFactory.file
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
}

func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, v...))
}
