// Package archive persists classified-relevant messages as an append-only
// newline-delimited JSON log. Records are never rewritten, updated, or
// deleted once appended.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is one archived message. URL and Author may be null; Platform
// and Data always carry values.
type Record struct {
	URL      *string `json:"url"`
	Data     string  `json:"data"`
	Platform string  `json:"platform"`
	Author   *string `json:"author"`
}

// Store serializes appends so concurrent callers each write one complete,
// independently parseable line.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating dataset dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Append writes one record as a single JSON line. The write is atomic per
// record: the line is marshaled first, then written under the lock in one
// call, so a failed marshal never touches the file and two concurrent
// appends never interleave.
func (s *Store) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}
	return nil
}

// Records reads back every appended record. Used by the status command
// and tests; the pipeline itself never reads the dataset.
func (s *Store) Records() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("corrupt dataset line: %w", err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// Count reports the number of archived records.
func (s *Store) Count() (int, error) {
	records, err := s.Records()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// StringOrNil maps an empty string to a JSON null for the optional
// url/author fields.
func StringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
