package orchestrator

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/lamim/copyforge/pkg/models"
)

// ReadJobs parses a JSONL batch file. Each line is either a bare user config
// ({"style": "熱血", ...}) or a request body ({"prompt": {...}}). Blank lines
// and lines starting with '#' are skipped. Line numbers are 1-based.
func ReadJobs(r io.Reader) ([]models.BatchJob, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var jobs []models.BatchJob
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		cfg, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		jobs = append(jobs, models.BatchJob{ID: len(jobs), Line: lineNo, Config: cfg})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}
	return jobs, nil
}

func parseLine(line []byte) (models.UserConfig, error) {
	var wrapped struct {
		Prompt json.RawMessage `json:"prompt"`
	}
	if err := json.Unmarshal(line, &wrapped); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}

	body := line
	if len(wrapped.Prompt) > 0 && wrapped.Prompt[0] == '{' {
		body = wrapped.Prompt
	}

	var cfg models.UserConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("module names must be strings: %w", err)
	}
	if cfg == nil {
		cfg = models.UserConfig{}
	}
	return cfg, nil
}
