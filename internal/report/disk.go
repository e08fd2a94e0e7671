package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/deixis/redgreen/internal/runner"
)

// DiskStore writes run results as JSON files to a directory.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a new DiskStore rooted at dir. An empty dir means a
// temp directory created lazily on the first Save or Load.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Save writes a run result as a JSON file to disk.
func (s *DiskStore) Save(result *runner.Result) error {
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result %s: %w", result.RunID, err)
	}
	path := filepath.Join(dir, result.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result %s: %w", result.RunID, err)
	}
	return nil
}

// Load reads a run result from disk.
func (s *DiskStore) Load(runID string) (*runner.Result, error) {
	if runID == "" || filepath.Base(runID) != runID {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, runID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result %s: %w", runID, err)
	}
	var result runner.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling result %s: %w", runID, err)
	}
	return &result, nil
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("creating result directory: %w", err)
		}
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "redgreen-runs-*")
	if err != nil {
		return "", fmt.Errorf("creating result directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}
