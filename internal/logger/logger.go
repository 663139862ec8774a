package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"time"
)

type LogLevel string

const (
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"
	DebugLevel LogLevel = "DEBUG"
)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s"]+`)
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[^\s"]+`)
)

// Field is a single structured key/value attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogEntry describes the structure of a log message
type LogEntry struct {
	Time    string         `json:"time"`
	Level   LogLevel       `json:"level"`
	Module  string         `json:"module,omitempty"`
	Message string         `json:"message"`
	Error   string         `json:"error,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Logger is a centralized structured logger
type Logger struct {
	out *log.Logger
}

// New creates a new Logger writing to stdout
func New() *Logger {
	return NewWriter(os.Stdout)
}

// NewWriter creates a Logger writing JSON lines to w.
func NewWriter(w io.Writer) *Logger {
	return &Logger{
		out: log.New(w, "", 0),
	}
}

// Anonymize replaces sensitive information in logs (emails, tokens)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = bearerRegex.ReplaceAllString(s, "Bearer [REDACTED_TOKEN]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	return s
}

// internal log function
func (l *Logger) log(module string, level LogLevel, msg string, err error, fields []Field) {
	entry := LogEntry{
		Time:    time.Now().Format(time.RFC3339),
		Level:   level,
		Module:  module,
		Message: Anonymize(msg),
	}
	if err != nil {
		entry.Error = Anonymize(err.Error())
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]any, len(fields))
		for _, f := range fields {
			if s, ok := f.Value.(string); ok {
				entry.Fields[f.Key] = Anonymize(s)
				continue
			}
			if e, ok := f.Value.(error); ok {
				entry.Fields[f.Key] = Anonymize(e.Error())
				continue
			}
			entry.Fields[f.Key] = f.Value
		}
	}
	data, mErr := json.Marshal(entry)
	if mErr != nil {
		// unmarshalable field value; keep the line, drop the fields
		entry.Fields = map[string]any{"fields_error": fmt.Sprint(mErr)}
		data, _ = json.Marshal(entry)
	}
	l.out.Println(string(data))
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string, fields ...Field) {
	l.log(module, InfoLevel, msg, nil, fields)
}

func (l *Logger) Debug(module, msg string, fields ...Field) {
	l.log(module, DebugLevel, msg, nil, fields)
}

func (l *Logger) Warn(module, msg string, err error, fields ...Field) {
	l.log(module, WarnLevel, msg, err, fields)
}

func (l *Logger) Error(module, msg string, err error, fields ...Field) {
	l.log(module, ErrorLevel, msg, err, fields)
}
