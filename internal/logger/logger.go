// Package logger provides leveled logging for all clipper subsystems.
// Output is plain text by default; set LOG_FORMAT=json for structured
// JSON lines, and LOG_LEVEL=debug to enable debug output.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Field is a structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	logf("INFO", format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	logf("WARN", format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	logf("ERROR", format, args...)
}

// Debug logs a debug message when LOG_LEVEL=debug.
func Debug(format string, args ...interface{}) {
	if os.Getenv("LOG_LEVEL") != "debug" {
		return
	}
	logf("DEBUG", format, args...)
}

func logf(level, format string, args ...interface{}) {
	if len(args) > 0 {
		if fields, ok := args[len(args)-1].([]Field); ok {
			logStructured(level, format, fields...)
			return
		}
	}
	log.Printf(level+": "+format, args...)
}

// InfoStructured logs a message with explicit fields.
func InfoStructured(msg string, fields ...Field) {
	logStructured("INFO", msg, fields...)
}

// ErrorStructured logs an error message with explicit fields.
func ErrorStructured(msg string, fields ...Field) {
	logStructured("ERROR", msg, fields...)
}

func logStructured(level, msg string, fields ...Field) {
	if os.Getenv("LOG_FORMAT") == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"level":     level,
			"message":   msg,
		}
		for _, f := range fields {
			entry[f.Key] = f.Value
		}
		data, _ := json.Marshal(entry)
		log.Println(string(data))
		return
	}

	fieldStr := ""
	for _, f := range fields {
		fieldStr += fmt.Sprintf(" %s=%v", f.Key, f.Value)
	}
	log.Printf("%s: %s%s", level, msg, fieldStr)
}

// Helper constructors for common field types.

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Err(key string, err error) Field {
	if err == nil {
		return Field{Key: key, Value: nil}
	}
	return Field{Key: key, Value: err.Error()}
}
