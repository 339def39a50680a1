package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// Store persists approval requests as one JSON file per request.
type Store struct {
	dir    string
	mu     sync.RWMutex
	logger *logging.Logger
}

// NewStore creates the approvals directory under the state dir.
func NewStore(stateDir string, logger *logging.Logger) (*Store, error) {
	dir := filepath.Join(stateDir, "approvals")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create approvals directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory holding request files.
func (s *Store) Dir() string { return s.dir }

// Create persists a new pending request. The ID and timestamps are assigned
// here when missing so callers can pass a bare reason/detail pair.
func (s *Store) Create(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = NewRequestID()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.DedupHash == "" {
		req.DedupHash = DedupHash(req.Reason, "", req.Detail)
	}

	s.logger.Info("approval request created",
		"request_id", req.ID,
		"reason", req.Reason)
	return s.write(req)
}

// Get loads one request by ID.
func (s *Store) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(id)
}

// Pending returns every unresolved request, oldest first.
func (s *Store) Pending(ctx context.Context) ([]*Request, error) {
	all, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	var pending []*Request
	for _, req := range all {
		if req.Pending() {
			pending = append(pending, req)
		}
	}
	return pending, nil
}

// All returns every request, oldest first.
func (s *Store) All(ctx context.Context) ([]*Request, error) {
	return s.list(ctx)
}

// FindPendingByHash returns the pending request carrying the dedup hash, or
// nil when none exists. Escalation uses this to collapse repeats.
func (s *Store) FindPendingByHash(ctx context.Context, hash string) (*Request, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return nil, err
	}
	for _, req := range pending {
		if req.DedupHash == hash {
			return req, nil
		}
	}
	return nil, nil
}

// Approve resolves a pending request. Resolving anything else returns
// ErrAlreadyResolved.
func (s *Store) Approve(ctx context.Context, id, by, note string) (*Request, error) {
	return s.resolve(id, StatusApproved, by, note)
}

// Reject resolves a pending request as rejected.
func (s *Store) Reject(ctx context.Context, id, by, note string) (*Request, error) {
	return s.resolve(id, StatusRejected, by, note)
}

func (s *Store) resolve(id, status, by, note string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if !req.Pending() {
		return nil, fmt.Errorf("%w: %s is %s", errors.ErrAlreadyResolved, id, req.Status)
	}

	now := time.Now().UTC()
	req.Status = status
	req.ResolvedAt = &now
	req.ResolvedBy = by
	if note != "" {
		req.Note = note
	}

	if err := s.write(req); err != nil {
		return nil, err
	}
	s.logger.Info("approval request resolved",
		"request_id", id,
		"status", status,
		"by", by)
	return req, nil
}

func (s *Store) list(ctx context.Context) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read approvals directory: %w", err)
	}

	var requests []*Request
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		req, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable approval file", "file", name, "error", err.Error())
			continue
		}
		requests = append(requests, req)
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) read(id string) (*Request, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: approval request %s", errors.ErrNotFound, id)
		}
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse approval request %s: %w", id, err)
	}
	return &req, nil
}

// write marshals to a temp file and renames it over the target so a crash
// never leaves a half-written request behind.
func (s *Store) write(req *Request) error {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".req-*.tmp")
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
	return os.Rename(tmpName, s.path(req.ID))
}
