package cycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// Store persists cycle documents under <stateDir>/cycles/<id>/cycle.json.
type Store struct {
	dir    string
	logger *logging.Logger
}

// NewStore creates the cycles directory.
func NewStore(stateDir string, logger *logging.Logger) (*Store, error) {
	dir := filepath.Join(stateDir, "cycles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cycles directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Path returns the document path for a cycle id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id, "cycle.json")
}

// Save persists the cycle document atomically. Called after every phase so
// artifacts survive an abort.
func (s *Store) Save(c *Cycle) error {
	dir := filepath.Join(s.dir, c.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cycle-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.Path(c.ID))
}

// Load reads one cycle document.
func (s *Store) Load(id string) (*Cycle, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: cycle %s", errors.ErrNotFound, id)
		}
		return nil, err
	}
	var c Cycle
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse cycle %s: %w", id, err)
	}
	return &c, nil
}

// List returns every stored cycle id, sorted ascending. IDs embed the start
// timestamp, so this is chronological order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ArtifactsDir returns the directory a cycle's diagnostic artifacts go in.
func (s *Store) ArtifactsDir(id string) string {
	return filepath.Join(s.dir, id)
}
