package decisionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aveelabs/orchestrator/pkg/persistence"
)

// AuditWriter appends decision records to daily rotated JSONL files. The
// sqlite decision log is the queryable store; these files are the flat audit
// trail operators can ship off-box.
type AuditWriter struct {
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// NewAuditWriter creates an audit writer with daily rotation in the specified
// directory.
func NewAuditWriter(logDir string) (*AuditWriter, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	writer := &AuditWriter{logDir: logDir}

	if err := writer.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize audit log file: %w", err)
	}

	return writer, nil
}

// WriteDecision appends one decision record to the current file, rotating
// first if the date changed.
func (w *AuditWriter) WriteDecision(decision *persistence.Decision) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate audit log file: %w", err)
	}

	jsonData, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to serialize decision: %w", err)
	}

	if _, err := w.currentFile.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write decision: %w", err)
	}

	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log file: %w", err)
	}

	return nil
}

func (w *AuditWriter) rotateIfNeeded() error {
	newDate := time.Now().UTC().Format("2006-01-02")

	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}

	return nil
}

func (w *AuditWriter) rotate(newDate string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current audit log file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, fmt.Sprintf("decisions-%s.jsonl", newDate))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = newDate

	return nil
}

// Close closes the current audit log file.
func (w *AuditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close audit log file: %w", err)
		}
	}

	return nil
}

// CurrentLogFile returns the path of the currently active audit file.
func (w *AuditWriter) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}

	return filepath.Join(w.logDir, fmt.Sprintf("decisions-%s.jsonl", w.currentDate))
}

// ReadDecisions reads and parses decision records from a specific audit file.
func ReadDecisions(logFilePath string) ([]*persistence.Decision, error) {
	data, err := os.ReadFile(logFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log file: %w", err)
	}

	var decisions []*persistence.Decision
	line := []byte{}

	for _, b := range data {
		if b != '\n' {
			line = append(line, b)
			continue
		}
		if len(line) == 0 {
			continue
		}
		var d persistence.Decision
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("failed to parse decision record: %w", err)
		}
		decisions = append(decisions, &d)
		line = []byte{}
	}

	if len(line) > 0 {
		var d persistence.Decision
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("failed to parse final decision record: %w", err)
		}
		decisions = append(decisions, &d)
	}

	return decisions, nil
}

// ListLogFiles returns all audit log files in the log directory.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "decisions-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log files: %w", err)
	}

	return files, nil
}
