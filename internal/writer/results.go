package writer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/lamim/copyforge/pkg/models"
)

// ResultWriter appends batch results to a JSONL file, one line per job.
// It is safe for concurrent use.
type ResultWriter struct {
	file    *os.File
	mu      sync.Mutex
	written int
	logger  *slog.Logger
}

// NewResultWriter opens the session results file for appending
func NewResultWriter(sessionMgr *SessionManager, logger *slog.Logger) (*ResultWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := sessionMgr.GetResultsPath()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}

	logger.Info("Opened results file", "path", path)
	return &ResultWriter{file: file, logger: logger}, nil
}

// Write appends one result
func (w *ResultWriter) Write(result models.BatchResult) error {
	line := models.BatchLine{Line: result.Job.Line, Record: result.Record}
	if result.Error != nil {
		line.Error = result.Error.Error()
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	w.written++
	return nil
}

// Written returns how many results were appended by this writer
func (w *ResultWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close syncs and closes the results file
func (w *ResultWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		w.logger.Warn("Failed to sync results file", "error", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close results file: %w", err)
	}

	w.logger.Info("Closed results file", "written", w.written)
	return nil
}

// CompletedLines returns the input line numbers that already have a
// successful record in the results file. A missing file means none.
// Unparseable lines (e.g. a write cut short by a crash) are skipped.
func CompletedLines(path string) (map[int]bool, error) {
	done := make(map[int]bool)

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line models.BatchLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error == "" && line.Record != nil {
			done[line.Line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	return done, nil
}
