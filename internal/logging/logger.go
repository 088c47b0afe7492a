// Package logging provides the leveled, field-carrying logger used across the
// SRE assistant.
//
// Initialize once at startup and ask for named loggers per component:
//
//	logging.Initialize("info", map[string]string{"agent.*": "debug"})
//	logger := logging.GetLogger("coordinator")
//	logger.InfoWithFields("routing query",
//	    logging.Field("capability", name),
//	)
//
// Every line goes to the configured output (stderr by default) so that stdout
// stays free for the event stream printed by the CLI.
//
// Per-package levels accept exact names ("coordinator") and wildcard prefixes
// ("agent.*" matches "agent.finops" and "agent.kubernetes").
//
// Loggers derived with WithField, WithFields or WithContext are new values;
// the receiver is never modified, so a logger may be shared between turns.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
	// exitFunc is called by Fatal. Tests replace it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// An unknown default level falls back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalMu.Lock()
	globalLogger = &Logger{level: level, name: "sre-assistant"}
	globalMu.Unlock()

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}
	return nil
}

// SetDefaultLevel changes the level used by every logger without a package
// override, including loggers created earlier.
func SetDefaultLevel(levelStr string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		return err
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = &Logger{name: "sre-assistant"}
	}
	globalLogger.level = level
	return nil
}

// GetLogger returns a logger with the specified name.
func GetLogger(name string) *Logger {
	globalMu.RLock()
	initialized := globalLogger != nil
	globalMu.RUnlock()
	if !initialized {
		_ = Initialize("info")
	}
	return &Logger{
		name:   name,
		fields: make(map[string]interface{}),
	}
}

func defaultLevel() LogLevel {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return INFO
	}
	return globalLogger.level
}

// shouldLog checks per-package overrides first, then the global default.
func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= defaultLevel()
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l.shouldLog(level)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(levelDebug, msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(levelInfo, msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(levelWarn, msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(levelError, msg, args...)
	}
}

// Fatal logs a fatal message and exits with code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(levelFatal, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs an error message followed by err
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf(levelError, msg+" - %v", args...)
	}
}

// WithField adds a structured field to a copy of the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := &Logger{name: l.name, fields: cloneFields(l.fields), ctx: l.ctx}
	child.fields[key] = value
	return child
}

// WithFields adds several structured fields to a copy of the logger
func (l *Logger) WithFields(fields ...LogField) *Logger {
	child := &Logger{name: l.name, fields: cloneFields(l.fields), ctx: l.ctx}
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithContext attaches ctx; turn, user, trace and span ids found in it are
// added to every line written by the returned logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{name: l.name, fields: cloneFields(l.fields), ctx: ctx}
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields(levelDebug, msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields(levelInfo, msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields(levelWarn, msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(levelError, msg, fields...)
	}
}

// Priority, last wins: context fields, logger fields, call fields.
func (l *Logger) logWithFields(level, msg string, fields ...LogField) {
	l.writeLog(level, msg, mergeFields(extractContextFields(l.ctx), l.fields, fields))
}
