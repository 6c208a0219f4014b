package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level orders log severities.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger emits one JSON object per entry, with secret-looking field values
// masked before they reach the sink.
type Logger struct {
	mu            sync.Mutex
	out           io.Writer
	level         Level
	redactSecrets bool
}

var defaultLogger = &Logger{out: os.Stderr, level: INFO, redactSecrets: true}

// SetLevel sets the minimum severity the default logger emits.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedactSecrets toggles masking of secret-looking fields on the default
// logger. Only turn it off in tests.
func SetRedactSecrets(r bool) { defaultLogger.redactSecrets = r }

// Debug logs at DEBUG with alternating key, value fields.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info logs at INFO with alternating key, value fields.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn logs at WARN with alternating key, value fields.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error logs at ERROR with alternating key, value fields.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	// A trailing key without a value is dropped rather than guessed at.
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redactSecrets {
			val = redactValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}

var secretKeys = []string{"password", "secret", "token", "api_key", "apikey"}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range secretKeys {
		if strings.Contains(key, k) {
			return RedactSecret(val)
		}
	}
	if strings.Contains(key, "dsn") || strings.Contains(key, "url") {
		return RedactDSN(val)
	}
	return val
}
