package dbgerr

import (
	"log"
	"os"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the diagnostic stream for host-level errors: it never
// terminates the process, it only records.
type Logger struct {
	level  LogLevel
	logger *log.Logger
}

// NewLogger creates a Logger writing to stderr at the given minimum level.
func NewLogger(level LogLevel) *Logger {
	return &Logger{level: level, logger: log.New(os.Stderr, "", log.LstdFlags)}
}

// DefaultLogger returns a Logger at LogLevelInfo.
func DefaultLogger() *Logger {
	return NewLogger(LogLevelInfo)
}

func (l *Logger) SetLevel(level LogLevel) { l.level = level }

func (l *Logger) shouldLog(level LogLevel) bool { return level >= l.level }

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.shouldLog(LogLevelDebug) {
		l.logger.Printf("[DEBUG] "+format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.shouldLog(LogLevelInfo) {
		l.logger.Printf("[INFO] "+format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.shouldLog(LogLevelWarn) {
		l.logger.Printf("[WARN] "+format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.shouldLog(LogLevelError) {
		l.logger.Printf("[ERROR] "+format, args...)
	}
}

// LogError logs err at a level derived from its tag, recovering
// unexpected (non-DebugError) errors at Error level without ever
// panicking the process.
func (l *Logger) LogError(err error) {
	if err == nil {
		return
	}
	de, ok := err.(*DebugError)
	if !ok {
		l.Errorf("unexpected error: %v", err)
		return
	}
	l.logger.Printf("[%s] %s", l.levelForTag(de.Tag), FormatError(de))
}

func (l *Logger) levelForTag(tag Tag) LogLevel {
	switch tag {
	case NoSession, NoPause, InvalidPause, InvalidFrame, MissingLocator, UnknownScript, EvaluationException:
		return LogLevelWarn
	case TransportClosed, LauncherExitedEarly, StartFailed, TargetCommandFailed, Internal:
		return LogLevelError
	default:
		return LogLevelError
	}
}
