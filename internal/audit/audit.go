// Package audit keeps an append-only JSON-lines history of schema changes:
// registrations, definition updates and validator activation changes.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operations recorded in the log.
const (
	OpRegister = "register"
	OpUpdate   = "update"
	OpEnable   = "enable"
	OpDisable  = "disable"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Operation  string    `json:"op"`
	Kind       string    `json:"kind"` // property, synonym, validator
	Name       string    `json:"name"`
	EntityType string    `json:"entity_type,omitempty"`
	ID         string    `json:"id,omitempty"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
}

// Logger appends entries to one file. A Logger with no path is a no-op.
type Logger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates a logger writing to path. An empty path disables logging.
func New(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

// Enabled returns true if entries are written.
func (l *Logger) Enabled() bool {
	return l != nil && l.path != ""
}

// Path returns the log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes an entry to the audit log.
func (l *Logger) Log(entry Entry) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Filter selects entries in Read. Zero fields match everything.
type Filter struct {
	Since time.Time
	Name  string
}

func (f Filter) match(e *Entry) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return f.Name == "" || e.Name == f.Name
}

// Read returns matching entries in log order. Malformed lines are skipped.
func (l *Logger) Read(filter Filter) ([]Entry, error) {
	entries := []Entry{}
	if !l.Enabled() {
		return entries, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if filter.match(&entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	return entries, nil
}
