package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Logger struct {
	verbose bool
	colors  map[string]*color.Color
	file    *os.File
	mu      sync.Mutex
}

func NewLogger(verbose bool) *Logger {
	return &Logger{
		verbose: verbose,
		colors: map[string]*color.Color{
			"info":    color.New(color.FgBlue),
			"success": color.New(color.FgGreen),
			"warning": color.New(color.FgYellow),
			"error":   color.New(color.FgRed),
			"debug":   color.New(color.FgMagenta),
		},
	}
}

// NewFileLogger logs to the console and mirrors everything to a log file.
func NewFileLogger(verbose bool, path string) *Logger {
	logger := NewLogger(verbose)
	if path != "" {
		if err := EnsureDir(filepath.Dir(path)); err == nil {
			if file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
				logger.file = file
			}
		}
	}
	return logger
}

func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}

func (l *Logger) log(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("[%s] %s: %s\n", timestamp, strings.ToUpper(level), message)

	if c, ok := l.colors[level]; ok {
		c.Printf("[%s] %s: %s\n", timestamp, strings.ToUpper(level), message)
	} else {
		fmt.Print(logLine)
	}

	if l.file != nil {
		l.file.WriteString(logLine)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log("info", format, args...)
}

func (l *Logger) Success(format string, args ...interface{}) {
	l.log("success", format, args...)
}

func (l *Logger) Warning(format string, args ...interface{}) {
	l.log("warning", format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log("error", format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.verbose {
		l.log("debug", format, args...)
	}
}
