package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/finworks/refflow/internal/domain"
)

// Spool is the durable local queue holding audit entries that could not be
// delivered to the sink. One JSON entry per line, written with O_APPEND and
// synced, so an entry survives a process crash between the committed entity
// transition and eventual audit delivery. The spool is a delivery queue, not
// the audit log: entries leave it once the sink has accepted them.
type Spool struct {
	path string
	mu   sync.Mutex
}

// NewSpool creates or opens the spool file at path, creating parent
// directories as needed.
func NewSpool(path string) (*Spool, error) {
	if path == "" {
		return nil, fmt.Errorf("spool path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close spool file: %w", err)
	}
	return &Spool{path: path}, nil
}

// Add appends one entry to the spool.
func (s *Spool) Add(entry domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal spooled entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open spool file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write spooled entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync spool file: %w", err)
	}
	return nil
}

// Pending returns every spooled entry in append order. Unparseable lines are
// skipped rather than wedging delivery of the rest.
func (s *Spool) Pending() ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Remove rewrites the spool without the entries whose audit ids are in
// delivered. Called after the sink has accepted them.
func (s *Spool) Remove(delivered map[string]bool) error {
	if len(delivered) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLocked()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, entry := range entries {
		if delivered[entry.AuditID.String()] {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to re-marshal spooled entry: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write spool replacement: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to swap spool file: %w", err)
	}
	return nil
}

func (s *Spool) readLocked() ([]domain.AuditEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read spool file: %w", err)
	}
	var entries []domain.AuditEntry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
