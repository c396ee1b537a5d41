package diag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const spoolFile = "diagnostics-fallback.jsonl"

// Spool is an append-only JSONL file of log lines the collector never got.
// It keeps at most maxSize entries, dropping the oldest.
type Spool struct {
	path    string
	maxSize int
	entries []SpoolEntry
	seq     int64
	mu      sync.Mutex
	append  *os.File
}

func NewSpool(stateDir string, maxSize int) (*Spool, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if maxSize <= 0 {
		maxSize = 1000
	}

	s := &Spool{
		path:    filepath.Join(stateDir, spoolFile),
		maxSize: maxSize,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	if err := s.openAppend(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Spool) Path() string { return s.path }

func (s *Spool) load() error {
	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open spool file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry SpoolEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // Skip torn or foreign lines
		}
		s.entries = append(s.entries, entry)
		if entry.Seq > s.seq {
			s.seq = entry.Seq
		}
	}
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	return scanner.Err()
}

func (s *Spool) openAppend() error {
	if s.append != nil {
		return nil
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open spool file for append: %w", err)
	}
	s.append = file
	return nil
}

func (s *Spool) writeLine(w *os.File, entry SpoolEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func (s *Spool) compact() error {
	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	for _, entry := range s.entries {
		if err := s.writeLine(file, entry); err != nil {
			file.Close()
			return err
		}
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	if s.append != nil {
		_ = s.append.Close()
		s.append = nil
	}
	return s.openAppend()
}

// Push records an undelivered entry and assigns its sequence number.
func (s *Spool) Push(entry SpoolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry.Seq = s.seq

	needsCompact := false
	if len(s.entries) >= s.maxSize {
		s.entries = s.entries[1:]
		needsCompact = true
	}
	s.entries = append(s.entries, entry)

	if needsCompact {
		return s.compact()
	}
	if err := s.openAppend(); err != nil {
		return err
	}
	return s.writeLine(s.append, entry)
}

func (s *Spool) Entries() []SpoolEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SpoolEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Spool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.append == nil {
		return nil
	}
	err := s.append.Close()
	s.append = nil
	return err
}
