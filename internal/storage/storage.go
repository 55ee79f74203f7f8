package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pmansara/opendrive/internal/models"
)

// JSONStorage persists run data to a single JSON file, guarded by a RWMutex
// and written via a temp file plus atomic rename.
type JSONStorage struct {
	mu   sync.RWMutex
	path string
	data *storageData
}

type storageData struct {
	Runs            []RunRecord       `json:"runs"`
	ClosedPositions []models.Position `json:"closed_positions"`
	LastUpdated     time.Time         `json:"last_updated"`
}

// NewJSONStorage creates storage backed by the given file, loading existing
// data when the file is already present.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		path: path,
		data: &storageData{},
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the storage file into memory.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, s.data)
}

// Save writes the current state atomically.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.path)
}

// AppendRun records one scan cycle's execution ledger.
func (s *JSONStorage) AppendRun(ledger models.ExecutionLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Runs = append(s.data.Runs, RunRecord{
		RunID:     ledger.RunID,
		Timestamp: time.Now().UTC(),
		Ledger:    ledger,
		Summary:   ledger.Summary(),
	})
	return s.saveLocked()
}

// RecordClose appends a closed position.
func (s *JSONStorage) RecordClose(pos models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos.State != models.StateClosed {
		return fmt.Errorf("position %s is not closed (state %s)", pos.ID, pos.State)
	}
	s.data.ClosedPositions = append(s.data.ClosedPositions, pos)
	return s.saveLocked()
}

// GetRuns returns a copy of all persisted runs.
func (s *JSONStorage) GetRuns() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, len(s.data.Runs))
	copy(out, s.data.Runs)
	return out
}

// GetClosedPositions returns a copy of all closed positions.
func (s *JSONStorage) GetClosedPositions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, len(s.data.ClosedPositions))
	copy(out, s.data.ClosedPositions)
	return out
}
