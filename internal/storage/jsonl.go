package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hookGuard/internal/model"
)

// JsonlStorage appends outcomes and pool stats to JSONL files.
type JsonlStorage struct {
	outcomesPath string
	statsPath    string
	mu           sync.Mutex
}

func NewJsonlStorage(outcomesPath, statsPath string) *JsonlStorage {
	return &JsonlStorage{outcomesPath: outcomesPath, statsPath: statsPath}
}

// PutOutcomes appends a batch of swap outcomes as JSON lines.
func (s *JsonlStorage) PutOutcomes(outcomes []model.SwapOutcome) error {
	records := make([]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, o)
	}
	return s.appendLines(s.outcomesPath, records)
}

// PutPoolStats appends a batch of pool stats as JSON lines.
func (s *JsonlStorage) PutPoolStats(stats []model.PoolStats) error {
	if s.statsPath == "" {
		return nil
	}
	records := make([]interface{}, 0, len(stats))
	for _, st := range stats {
		records = append(records, st)
	}
	return s.appendLines(s.statsPath, records)
}

func (s *JsonlStorage) appendLines(path string, records []interface{}) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// ReadRequests loads swap requests from a JSONL file. Blank lines are skipped.
func ReadRequests(path string) ([]model.SwapRequest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open requests: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	requests := make([]model.SwapRequest, 0)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req model.SwapRequest
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, fmt.Errorf("parse request line %d: %w", lineNo, err)
		}
		if req.ID == "" {
			req.ID = fmt.Sprintf("line-%d", lineNo)
		}
		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan requests: %w", err)
	}
	return requests, nil
}
