package cycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// historyCap bounds the plan's cycle history.
const historyCap = 50

// PlanFileName is the plan document name inside the state directory.
const PlanFileName = "plan.json"

// ProjectIdentity is the locked title/track pair. Set once at kickoff and
// immutable afterwards.
type ProjectIdentity struct {
	Title    string    `json:"title"`
	Track    string    `json:"track"`
	LockedAt time.Time `json:"locked_at"`
}

// HistoryEntry is one completed cycle in the plan history.
type HistoryEntry struct {
	CycleID    string    `json:"cycle_id"`
	Summary    string    `json:"summary"`
	FinishedAt time.Time `json:"finished_at"`
}

// Plan is the single cross-cycle record.
type Plan struct {
	Project     *ProjectIdentity `json:"project,omitempty"`
	LastSummary string           `json:"last_summary,omitempty"`
	History     []HistoryEntry   `json:"history,omitempty"`
	CycleCount  int              `json:"cycle_count"`
}

// Locked reports whether the project identity has been set.
func (p *Plan) Locked() bool {
	return p.Project != nil && p.Project.Title != ""
}

// PlanStore read-modify-writes the plan document.
type PlanStore struct {
	path   string
	mu     sync.Mutex
	logger *logging.Logger
}

// NewPlanStore returns a store for <stateDir>/plan.json.
func NewPlanStore(stateDir string, logger *logging.Logger) *PlanStore {
	return &PlanStore{
		path:   filepath.Join(stateDir, PlanFileName),
		logger: logger,
	}
}

// Path returns the plan file location.
func (s *PlanStore) Path() string { return s.path }

// Load reads the current plan. A missing file is an empty plan.
func (s *PlanStore) Load() (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *PlanStore) load() (*Plan, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Plan{}, nil
		}
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &plan, nil
}

// LockIdentity sets the project identity if the plan has none. A second lock
// attempt with a different identity returns ErrIdentityLocked.
func (s *PlanStore) LockIdentity(title, track string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.load()
	if err != nil {
		return err
	}
	if plan.Locked() {
		if plan.Project.Title == title && plan.Project.Track == track {
			return nil
		}
		return fmt.Errorf("%w: %q", errors.ErrIdentityLocked, plan.Project.Title)
	}
	plan.Project = &ProjectIdentity{
		Title:    title,
		Track:    track,
		LockedAt: time.Now().UTC(),
	}
	s.logger.Info("project identity locked", "title", title, "track", track)
	return s.write(plan)
}

// RecordCycle appends the finished cycle to the history, bumps the counter,
// and updates the latest summary. History is capped at the most recent
// entries.
func (s *PlanStore) RecordCycle(c *Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.load()
	if err != nil {
		return err
	}

	finished := time.Now().UTC()
	if c.FinishedAt != nil {
		finished = *c.FinishedAt
	}
	plan.History = append(plan.History, HistoryEntry{
		CycleID:    c.ID,
		Summary:    c.Summary(),
		FinishedAt: finished,
	})
	if len(plan.History) > historyCap {
		plan.History = plan.History[len(plan.History)-historyCap:]
	}
	plan.LastSummary = c.Summary()
	plan.CycleCount++

	return s.write(plan)
}

// write persists the plan atomically.
func (s *PlanStore) write(plan *Plan) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".plan-*.tmp")
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
	return os.Rename(tmpName, s.path)
}
