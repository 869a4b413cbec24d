package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const timeFormat = "2006-01-02 15:04:05"

var (
	debugColor    = color.New(color.FgHiBlack).SprintFunc()
	infoColor     = color.New(color.FgGreen).SprintFunc()
	warnColor     = color.New(color.FgYellow).SprintFunc()
	errorColor    = color.New(color.FgRed, color.Bold).SprintFunc()
	processColor  = color.New(color.FgCyan).SprintFunc()
	databaseColor = color.New(color.FgBlue).SprintFunc()
	apiColor      = color.New(color.FgMagenta).SprintFunc()
	kafkaColor    = color.New(color.FgHiCyan).SprintFunc()
	bookingColor  = color.New(color.FgHiGreen).SprintFunc()
	backupColor   = color.New(color.FgHiBlue).SprintFunc()
	securityColor = color.New(color.FgHiRed).SprintFunc()
)

// Logger writes category-tagged lines to the console and, optionally,
// mirrors them without colour to a log file.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level
	exit  func(int)
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FILE.
func NewLogger() *Logger {
	l := New(os.Stdout, os.Getenv("LOG_LEVEL"))

	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Warn("LOGGER", fmt.Sprintf("Cannot open log file %s: %v", path, err))
		} else {
			l.file = f
		}
	}

	return l
}

// New returns a logger writing to out. Unknown levels fall back to info.
func New(out io.Writer, level string) *Logger {
	return &Logger{
		out:   out,
		level: ParseLevel(level),
		exit:  os.Exit,
	}
}

func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) write(level Level, tag string, paint func(a ...interface{}) string, category, message string) {
	if level < l.level {
		return
	}

	ts := time.Now().Format(timeFormat)
	plain := fmt.Sprintf("%s [%s] [%s] %s\n", ts, tag, category, message)

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.out, "%s %s %s %s\n", ts, paint("["+tag+"]"), paint("["+category+"]"), message)
	if l.file != nil {
		l.file.WriteString(plain)
	}
}

func (l *Logger) Debug(category, message string) {
	l.write(LevelDebug, "DEBUG", debugColor, category, message)
}

func (l *Logger) Info(category, message string) {
	l.write(LevelInfo, "INFO", infoColor, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.write(LevelWarn, "WARN", warnColor, category, message)
}

func (l *Logger) Error(category, message string) {
	l.write(LevelError, "ERROR", errorColor, category, message)
}

// Fatal logs at error level and terminates the process.
func (l *Logger) Fatal(category, message string) {
	l.write(LevelError, "FATAL", errorColor, category, message)
	l.Close()
	l.exit(1)
}

func (l *Logger) LogProcess(category, message string) {
	l.write(LevelInfo, "PROCESS", processColor, category, message)
}

func (l *Logger) LogDatabase(operation, database, message string) {
	l.write(LevelDebug, "DB", databaseColor, operation+":"+database, message)
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(LevelInfo, "API", apiColor, method, fmt.Sprintf("%s %s (%s)", path, status, duration))
}

func (l *Logger) LogKafka(operation, topic, message string) {
	l.write(LevelInfo, "KAFKA", kafkaColor, operation+":"+topic, message)
}

func (l *Logger) LogBooking(operation, bookingID, message string) {
	l.write(LevelInfo, "BOOKING", bookingColor, operation+":"+bookingID, message)
}

func (l *Logger) LogBackup(operation, message string) {
	l.write(LevelInfo, "BACKUP", backupColor, operation, message)
}

func (l *Logger) LogSecurity(event, message string) {
	l.write(LevelWarn, "SECURITY", securityColor, event, message)
}
