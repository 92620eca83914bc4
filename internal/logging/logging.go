// Package logging sets up the shared logrus instance used across the
// proxy, per SPEC_FULL.md's ambient-stack section.
//
// Grounded on the teacher's internal/logging/global_logger.go: same
// custom LogFormatter shape, same sync.Once-guarded setup, same
// lumberjack-backed rotation when logging to a file. Trimmed to this
// proxy's single-destination model (one file or stdout, chosen once at
// startup from PROXY_LOG_FILE) since the teacher's multi-backend
// log-directory resolution and background size-cleaner exist to serve a
// long-lived multi-tenant CLI process, not a single stateless proxy.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tyrchen/claude-code-proxy/internal/config"
)

var (
	setupOnce sync.Once
	fileMu    sync.Mutex
	fileOut   *lumberjack.Logger
)

// LogFormatter renders one line per entry:
// [2026-08-03 20:14:04] [info ] [handler.go:82] message key=value ...
type LogFormatter struct{}

var logFieldOrder = []string{"model", "path", "bytes_written", "kind", "status", "tool_use_id", "request_id", "latency"}

// Format implements logrus.Formatter.
func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buffer := entry.Buffer
	if buffer == nil {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	levelStr := fmt.Sprintf("%-5s", level)

	var fieldsStr string
	if len(entry.Data) > 0 {
		var fields []string
		for _, k := range logFieldOrder {
			if v, ok := entry.Data[k]; ok {
				fields = append(fields, fmt.Sprintf("%s=%v", k, v))
			}
		}
		if len(fields) > 0 {
			fieldsStr = " " + strings.Join(fields, " ")
		}
	}

	if entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s] [%s] [%s:%d] %s%s\n", timestamp, levelStr, filepath.Base(entry.Caller.File), entry.Caller.Line, message, fieldsStr)
	} else {
		fmt.Fprintf(buffer, "[%s] [%s] %s%s\n", timestamp, levelStr, message, fieldsStr)
	}
	return buffer.Bytes(), nil
}

// Setup configures the shared logrus instance from cfg: level, formatter,
// and destination (stdout, or a rotating file when cfg.LogFile is set).
// Safe to call more than once; only the first call takes effect.
func Setup(cfg *config.Config) {
	setupOnce.Do(func() {
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})

		if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
			log.SetLevel(level)
		} else {
			log.SetLevel(log.InfoLevel)
		}

		configureOutput(cfg)
	})
}

func configureOutput(cfg *config.Config) {
	fileMu.Lock()
	defer fileMu.Unlock()

	if cfg.LogFile == "" {
		log.SetOutput(os.Stdout)
		return
	}

	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	fileOut = &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	log.SetOutput(fileOut)
}
