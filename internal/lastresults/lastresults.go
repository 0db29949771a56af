// Package lastresults persists the most recent search so follow-up
// commands can show it again or pick rows from it by number.
package lastresults

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aidanlsb/moltrack/internal/query"
)

// FileName is the name of the results file inside the state directory.
const FileName = "last-search.json"

// LastResults stores the rows of the most recent search.
type LastResults struct {
	Request   query.SearchRequest `json:"request"`
	Timestamp time.Time           `json:"timestamp"`
	Columns   []string            `json:"columns"`
	Rows      []map[string]any    `json:"rows"`
}

// Errors
var (
	ErrNoLastResults    = errors.New("no last search available")
	ErrNumberOutOfRange = errors.New("row number out of range")
	ErrInvalidNumber    = errors.New("invalid row number")
)

// Path returns the path to the results file in dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// New captures the rows of a finished search.
func New(req query.SearchRequest, columns []query.Column, rows []map[string]any) *LastResults {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Alias
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &LastResults{Request: req, Timestamp: time.Now(), Columns: names, Rows: rows}
}

// Write saves the results to dir, creating it if needed.
func Write(dir string, lr *LastResults) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(lr, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal last search: %w", err)
	}
	if err := os.WriteFile(Path(dir), data, 0o644); err != nil {
		return fmt.Errorf("failed to write last search: %w", err)
	}
	return nil
}

// Read loads the results saved in dir.
func Read(dir string) (*LastResults, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLastResults
		}
		return nil, fmt.Errorf("failed to read last search: %w", err)
	}
	var lr LastResults
	if err := json.Unmarshal(data, &lr); err != nil {
		return nil, fmt.Errorf("failed to parse last search: %w", err)
	}
	return &lr, nil
}

// GetByNumbers returns the rows with the given 1-indexed numbers.
func (lr *LastResults) GetByNumbers(nums []int) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(nums))
	for _, n := range nums {
		if n < 1 || n > len(lr.Rows) {
			return nil, fmt.Errorf("%w: %d (valid range: 1-%d)", ErrNumberOutOfRange, n, len(lr.Rows))
		}
		rows = append(rows, lr.Rows[n-1])
	}
	return rows, nil
}
