package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "error":
		return LogLevelError
	case "info":
		return LogLevelInfo
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelError:
		return "error"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

func (l LogLevel) toLogrus() logrus.Level {
	switch l {
	case LogLevelOff:
		return logrus.PanicLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelDebug:
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// Logger writes leveled, timestamped lines through logrus. A Logger created
// by WithField shares its parent's output and level.
type Logger struct {
	mu       sync.Mutex
	entry    *logrus.Entry
	file     *os.File
	filePath string
}

// NewLogger creates a logger appending to filePath. Level off or an empty
// path discards everything.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	if level == LogLevelOff || filePath == "" {
		return NewLoggerWithWriter(level, io.Discard), nil
	}

	filePath = ExpandPath(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	logger := NewLoggerWithWriter(level, f)
	logger.file = f
	logger.filePath = filePath
	return logger, nil
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(level LogLevel, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	base.SetLevel(level.toLogrus())

	return &Logger{entry: logrus.NewEntry(base)}
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return NewLoggerWithWriter(LogLevelOff, io.Discard)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.entry.Logger.SetOutput(io.Discard)
		return err
	}
	return nil
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.entry.Logger.SetLevel(level.toLogrus())
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	switch l.entry.Logger.GetLevel() {
	case logrus.PanicLevel, logrus.FatalLevel:
		return LogLevelOff
	case logrus.InfoLevel, logrus.WarnLevel:
		return LogLevelInfo
	case logrus.DebugLevel, logrus.TraceLevel:
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// Path returns the log file path, or "" when not logging to a file.
func (l *Logger) Path() string {
	return l.filePath
}

// WithField returns a logger that adds key=value to every line.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}
