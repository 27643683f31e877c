package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/stuck/pkg/configuration"
)

// LogLevel orders log entries by severity.
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

// LogArea is a subsystem that can be switched on and off with log_<area>.
type LogArea string

const (
	AreaInterpreter LogArea = "interpreter"
	AreaTerminal    LogArea = "terminal"
	AreaWebSocket   LogArea = "websocket"
	AreaAuth        LogArea = "auth"
	AreaStorage     LogArea = "storage"
	AreaSession     LogArea = "session"
	AreaSecurity    LogArea = "security"
	AreaConfig      LogArea = "config"
	AreaREPL        LogArea = "repl"
	AreaGeneral     LogArea = "general"
)

var allAreas = []LogArea{
	AreaInterpreter, AreaTerminal, AreaWebSocket, AreaAuth, AreaStorage,
	AreaSession, AreaSecurity, AreaConfig, AreaREPL, AreaGeneral,
}

// Logger writes levelled, area-tagged entries to a size-rotated file.
// The enabled, level and area switches are read on every call without
// taking the file lock.
type Logger struct {
	enabled atomic.Bool
	level   atomic.Int32
	areas   map[LogArea]*atomic.Bool

	mutex         sync.Mutex
	file          *os.File
	logPath       string
	maxSize       int64
	rotationCount int
	currentSize   int64
}

var (
	globalLogger *Logger
	initOnce     sync.Once
)

// Initialize sets up the global logger from the [Debug] section. With
// enable_debug_logging off no file is opened.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		globalLogger, err = newLogger()
	})
	return err
}

func newLogger() (*Logger, error) {
	l := &Logger{areas: make(map[LogArea]*atomic.Bool, len(allAreas))}
	for _, area := range allAreas {
		l.areas[area] = new(atomic.Bool)
	}

	l.enabled.Store(configuration.GetBool("Debug", "enable_debug_logging", false))
	l.level.Store(int32(parseLogLevel(configuration.GetString("Debug", "log_level", "INFO"))))
	l.logPath = configuration.GetString("Debug", "log_file", "stuck.log")
	l.maxSize = int64(configuration.GetInt("Debug", "max_log_size_mb", 10)) << 20
	l.rotationCount = configuration.GetInt("Debug", "log_rotation_count", 3)
	for area, on := range l.areas {
		on.Store(configuration.GetBool("Debug", "log_"+string(area), false))
	}

	if l.enabled.Load() {
		if err := l.openLogFile(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Logger) openLogFile() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		l.file.Close()
	}
	if err := os.MkdirAll(filepath.Dir(l.logPath), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.currentSize = 0
	if stat, err := file.Stat(); err == nil {
		l.currentSize = stat.Size()
	}
	return nil
}

// rotateLocked shifts stuck.log -> stuck.log.1 -> ... and drops the oldest.
// The caller holds l.mutex.
func (l *Logger) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.rotationCount > 0 {
		numbered := func(i int) string { return fmt.Sprintf("%s.%d", l.logPath, i) }
		os.Remove(numbered(l.rotationCount))
		for i := l.rotationCount - 1; i >= 1; i-- {
			os.Rename(numbered(i), numbered(i+1))
		}
		os.Rename(l.logPath, numbered(1))
	}

	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.currentSize = 0
	return nil
}

func (l *Logger) areaOn(area LogArea) bool {
	on, ok := l.areas[area]
	return ok && on.Load()
}

func (l *Logger) shouldLog(level LogLevel, area LogArea) bool {
	return l.enabled.Load() && LogLevel(l.level.Load()) <= level && l.areaOn(area)
}

// write formats one entry. skip is the number of frames between the public
// logging function and the caller being reported.
func (l *Logger) write(level LogLevel, area LogArea, skip int, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	tag := strings.ToUpper(string(area))

	_, file, line, _ := runtime.Caller(skip)
	entry := fmt.Sprintf("[%s] %s [%s:%d] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level, filepath.Base(file), line, tag, message)

	l.mutex.Lock()
	if l.file != nil {
		if n, err := l.file.WriteString(entry); err == nil {
			l.currentSize += int64(n)
			if l.maxSize > 0 && l.currentSize > l.maxSize {
				l.rotateLocked()
			}
		}
	}
	l.mutex.Unlock()

	if level >= WARN {
		log.Printf("[%s] [%s] %s", level, tag, message)
	}
}

func logf(level LogLevel, area LogArea, format string, args ...interface{}) {
	if l := globalLogger; l != nil && l.shouldLog(level, area) {
		// write <- logf <- Debug, AuthInfo, ... <- caller
		l.write(level, area, 3, format, args...)
	}
}

func Debug(area LogArea, format string, args ...interface{}) { logf(DEBUG, area, format, args...) }
func Info(area LogArea, format string, args ...interface{})  { logf(INFO, area, format, args...) }
func Warn(area LogArea, format string, args ...interface{})  { logf(WARN, area, format, args...) }
func Error(area LogArea, format string, args ...interface{}) { logf(ERROR, area, format, args...) }

// Shorthands for the busiest areas.

func AuthInfo(format string, args ...interface{})  { logf(INFO, AreaAuth, format, args...) }
func AuthWarn(format string, args ...interface{})  { logf(WARN, AreaAuth, format, args...) }
func AuthError(format string, args ...interface{}) { logf(ERROR, AreaAuth, format, args...) }

func SecurityWarn(format string, args ...interface{}) { logf(WARN, AreaSecurity, format, args...) }

func StorageDebug(format string, args ...interface{}) { logf(DEBUG, AreaStorage, format, args...) }
func StorageInfo(format string, args ...interface{})  { logf(INFO, AreaStorage, format, args...) }
func StorageError(format string, args ...interface{}) { logf(ERROR, AreaStorage, format, args...) }

func WebSocketDebug(format string, args ...interface{}) { logf(DEBUG, AreaWebSocket, format, args...) }
func WebSocketWarn(format string, args ...interface{})  { logf(WARN, AreaWebSocket, format, args...) }

func ConfigInfo(format string, args ...interface{}) { logf(INFO, AreaConfig, format, args...) }

// EnableArea switches an area on at runtime.
func EnableArea(area LogArea) { setArea(area, true) }

// DisableArea switches an area off at runtime.
func DisableArea(area LogArea) { setArea(area, false) }

func setArea(area LogArea, on bool) {
	if globalLogger == nil {
		return
	}
	if flag, ok := globalLogger.areas[area]; ok {
		flag.Store(on)
	}
}

// GetAreaStatus reports whether an area is on.
func GetAreaStatus(area LogArea) bool {
	return globalLogger != nil && globalLogger.areaOn(area)
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR", "FATAL":
		return ERROR
	}
	return INFO
}

// Close closes the log file.
func Close() {
	if globalLogger == nil {
		return
	}
	globalLogger.mutex.Lock()
	defer globalLogger.mutex.Unlock()

	if globalLogger.file != nil {
		globalLogger.file.Close()
		globalLogger.file = nil
	}
}
