package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global structured logger.
var Logger zerolog.Logger

var persistentLogger *PersistentLogger

// LogLevel is the minimum severity written by the logger.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      LogLevel
	Console    bool
	File       bool
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// DefaultLogConfig returns the console-only default configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      LogLevelInfo,
		Console:    true,
		MaxSizeMB:  10,
		MaxBackups: 5,
		Compress:   true,
	}
}

// PersistentLogConfig returns the configuration used by the packaged app:
// console plus a rotated file under the config directory.
func PersistentLogConfig(appDataPath string) LogConfig {
	c := DefaultLogConfig()
	c.File = true
	c.FilePath = filepath.Join(appDataPath, "logs", "openpelo.log")
	return c
}

// PersistentLogger handles size-based rotation of the log file.
type PersistentLogger struct {
	mu          sync.Mutex
	config      LogConfig
	currentFile *os.File
	currentSize int64
	logDir      string
}

// NewPersistentLogger opens the log file and starts the cleanup routine.
func NewPersistentLogger(config LogConfig) (*PersistentLogger, error) {
	logDir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	pl := &PersistentLogger{
		config: config,
		logDir: logDir,
	}

	if err := pl.openFile(); err != nil {
		return nil, err
	}

	go pl.cleanupRoutine()

	return pl, nil
}

// Write implements io.Writer.
func (pl *PersistentLogger) Write(p []byte) (n int, err error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.config.MaxSizeMB > 0 && pl.currentSize+int64(len(p)) > int64(pl.config.MaxSizeMB)*1024*1024 {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = pl.currentFile.Write(p)
	pl.currentSize += int64(n)
	return n, err
}

func (pl *PersistentLogger) openFile() error {
	file, err := os.OpenFile(pl.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	pl.currentFile = file
	pl.currentSize = info.Size()
	return nil
}

func (pl *PersistentLogger) rotate() error {
	if pl.currentFile != nil {
		pl.currentFile.Close()
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	rotatedPath := filepath.Join(pl.logDir, fmt.Sprintf("openpelo_%s.log", timestamp))

	if err := os.Rename(pl.config.FilePath, rotatedPath); err != nil {
		return pl.openFile()
	}

	if pl.config.Compress {
		go pl.compressFile(rotatedPath)
	}

	return pl.openFile()
}

func (pl *PersistentLogger) compressFile(filePath string) {
	src, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	defer gz.Close()

	if _, err := io.Copy(gz, src); err != nil {
		os.Remove(filePath + ".gz")
		return
	}

	os.Remove(filePath)
}

func (pl *PersistentLogger) cleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	pl.cleanup()

	for range ticker.C {
		pl.cleanup()
	}
}

func (pl *PersistentLogger) cleanup() {
	files, err := filepath.Glob(filepath.Join(pl.logDir, "openpelo_*.log*"))
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var fileInfos []fileInfo

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		fileInfos = append(fileInfos, fileInfo{path: f, modTime: info.ModTime()})
	}

	sort.Slice(fileInfos, func(i, j int) bool {
		return fileInfos[i].modTime.After(fileInfos[j].modTime)
	})

	for i, fi := range fileInfos {
		if pl.config.MaxBackups > 0 && i >= pl.config.MaxBackups {
			os.Remove(fi.path)
		}
	}
}

// Close closes the current log file.
func (pl *PersistentLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile != nil {
		return pl.currentFile.Close()
	}
	return nil
}

// InitLogger initializes the global logger.
func InitLogger(config LogConfig) error {
	var writers []io.Writer

	if config.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	if config.File && config.FilePath != "" {
		pl, err := NewPersistentLogger(config)
		if err != nil {
			return err
		}
		persistentLogger = pl
		writers = append(writers, pl)
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	multi := zerolog.MultiLevelWriter(writers...)

	var level zerolog.Level
	switch config.Level {
	case LogLevelDebug:
		level = zerolog.DebugLevel
	case LogLevelWarn:
		level = zerolog.WarnLevel
	case LogLevelError:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	Logger = zerolog.New(multi).
		Level(level).
		With().
		Timestamp().
		Logger()

	return nil
}

// CloseLogger closes the persistent log file, if any.
func CloseLogger() {
	if persistentLogger != nil {
		persistentLogger.Close()
	}
}

// Module-tagged helpers.

func DeviceLog() *zerolog.Event {
	return Logger.Info().Str("module", "device")
}

func BridgeLog() *zerolog.Event {
	return Logger.Debug().Str("module", "bridge")
}

func ScanLog() *zerolog.Event {
	return Logger.Info().Str("module", "scan")
}

func InstallLog() *zerolog.Event {
	return Logger.Info().Str("module", "install")
}

func MediaLog() *zerolog.Event {
	return Logger.Info().Str("module", "media")
}

// ========================================
// Journal - user-visible log ring
// ========================================

// journalCapacity bounds the in-memory journal; oldest entries are evicted.
const journalCapacity = 500

// Journal is a bounded append-only ring of user-visible log lines.
// Entries keep arrival order; once capacity is exceeded the oldest go first.
type Journal struct {
	mu      sync.Mutex
	entries []LogEntry
	cap     int
	sink    func(LogEntry)
}

// NewJournal creates a journal with the given capacity (<=0 means default).
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = journalCapacity
	}
	return &Journal{cap: capacity}
}

// SetSink registers a callback invoked for every appended entry, used to
// forward journal lines to the frontend. May be nil.
func (j *Journal) SetSink(sink func(LogEntry)) {
	j.mu.Lock()
	j.sink = sink
	j.mu.Unlock()
}

// Append adds a line under the given category.
func (j *Journal) Append(category, format string, args ...interface{}) {
	entry := LogEntry{
		Time:     time.Now(),
		Message:  fmt.Sprintf(format, args...),
		Category: category,
	}

	j.mu.Lock()
	j.entries = append(j.entries, entry)
	if len(j.entries) > j.cap {
		j.entries = j.entries[len(j.entries)-j.cap:]
	}
	sink := j.sink
	j.mu.Unlock()

	if sink != nil {
		sink(entry)
	}
}

// Entries returns a copy of the current journal contents, oldest first.
func (j *Journal) Entries() []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]LogEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
