// internal/logging/logging.go
// Package logging routes application logs to stdout and an optional log file,
// and turns model-call signals into log lines.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mwiater/concilium/internal/util"
)

// payloadPreviewRunes bounds request/response payloads written to the log
// when debug logging is off. Prompts carry whole documents.
const payloadPreviewRunes = 600

var (
	mu      sync.Mutex
	logFile *os.File
	debug   bool
)

// Init points the standard logger at stdout and, when logPath is set, at an
// append-mode log file as well.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	writers := []io.Writer{os.Stdout}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close detaches the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// SetDebug toggles full payload logging.
func SetDebug(enabled bool) {
	mu.Lock()
	debug = enabled
	mu.Unlock()
}

func debugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogRequest records one leg of a backend exchange. direction is usually
// "CONCILIUM->LLM" or "LLM->CONCILIUM".
func LogRequest(direction, backend, model string, payload any) {
	msg := buildRequestMessage(direction, backend, model, payload, !debugEnabled())
	log.Println(msg)
}

func buildRequestMessage(direction, backend, model string, payload any, truncate bool) string {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	backendValue := strings.TrimSpace(backend)
	if backendValue == "" {
		backendValue = "unknown"
	}
	modelValue := strings.TrimSpace(model)
	if modelValue == "" {
		modelValue = "unknown"
	}
	body := formatPayload(payload)
	if truncate {
		body = util.TruncateRunes(body, payloadPreviewRunes)
	}
	parts := []string{
		fmt.Sprintf("[%s]", dir),
		fmt.Sprintf("backend=%s", backendValue),
		fmt.Sprintf("model=%s", modelValue),
		fmt.Sprintf("payload=%s", body),
	}
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
