// Package logging provides categorized file-based logging for caseforge.
// Logs are written to <workspace>/.caseforge/logs/ with one file per category.
// Nothing is written until Init enables debug mode, so library consumers that
// never call Init pay only a mutex lookup.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config resolution
	CategoryAPI       Category = "api"       // LLM generation calls
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryDedup     Category = "dedup"     // Deduplication decisions
	CategoryPipeline  Category = "pipeline"  // Per-feature generation pipeline
	CategoryBatch     Category = "batch"     // Batch orchestration
)

// Config controls what gets logged. Categories maps category name -> enabled;
// an empty map enables everything when DebugMode is on.
type Config struct {
	DebugMode  bool            `json:"debug_mode"`
	Level      string          `json:"level"` // debug, info, warn, error
	Categories map[string]bool `json:"categories,omitempty"`
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// Logger writes category-tagged lines to the category's log file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	cfg      Config
	enabled  bool
	logLevel = levelInfo
)

// Init configures logging for the given workspace. Safe to call more than
// once; later calls reconfigure. With cfg.DebugMode false logging stays off.
func Init(workspace string, c Config) error {
	mu.Lock()
	defer mu.Unlock()

	closeAllLocked()
	cfg = c
	enabled = c.DebugMode
	logLevel = parseLevel(c.Level)
	if !enabled {
		return nil
	}

	logsDir = filepath.Join(workspace, ".caseforge", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		enabled = false
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// Close flushes and closes all category log files.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeAllLocked()
}

func closeAllLocked() {
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

func parseLevel(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return levelDebug
	case "", "info":
		return levelInfo
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func categoryEnabled(cat Category) bool {
	if !enabled {
		return false
	}
	if len(cfg.Categories) == 0 {
		return true
	}
	on, found := cfg.Categories[string(cat)]
	return !found || on
}

// Get returns the logger for a category, creating its file on first use.
// Always returns a usable logger; when logging is disabled it is a no-op.
func Get(cat Category) *Logger {
	mu.RLock()
	l, ok := loggers[cat]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok = loggers[cat]; ok {
		return l
	}

	l = &Logger{category: cat}
	if categoryEnabled(cat) {
		path := filepath.Join(logsDir, string(cat)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
		}
	}
	loggers[cat] = l
	return l
}

func (l *Logger) write(level int, tag, format string, args ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	mu.RLock()
	min := logLevel
	mu.RUnlock()
	if level < min {
		return
	}
	l.logger.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(levelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(levelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(levelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(levelError, "ERROR", format, args...)
}

// Convenience helpers, one pair per category that logs frequently.

func Boot(format string, args ...interface{})  { Get(CategoryBoot).Info(format, args...) }
func API(format string, args ...interface{})   { Get(CategoryAPI).Info(format, args...) }
func Batch(format string, args ...interface{}) { Get(CategoryBatch).Info(format, args...) }

func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

func Dedup(format string, args ...interface{}) { Get(CategoryDedup).Info(format, args...) }
func DedupDebug(format string, args ...interface{}) {
	Get(CategoryDedup).Debug(format, args...)
}
