package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"traderScope/internal/model"
)

// JsonlStorage appends trader summaries to a JSONL file, one summary per line.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutSummaries appends summaries. An empty batch does not create the file.
func (s *JsonlStorage) PutSummaries(summaries []model.TraderSummary) (err error) {
	if len(summaries) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, summary := range summaries {
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("write summary %s: %w", summary.Address, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
