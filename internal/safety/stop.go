// Package safety owns the emergency-stop control file. The switch is a
// plain JSON file so an operator can flip it with any editor while a cycle
// is running; the orchestrator re-reads it before every phase and before
// every blocking agent invocation.
package safety

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// StopFileName is the control file name inside the state directory.
const StopFileName = "emergency-stop.json"

// StopState is the on-disk shape of the emergency-stop switch.
type StopState struct {
	EmergencyStop bool      `json:"emergency_stop"`
	Reason        string    `json:"reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
}

// Switch reads and writes the emergency-stop control file.
type Switch struct {
	path   string
	logger *logging.Logger
}

// NewSwitch returns a Switch rooted at the state directory.
func NewSwitch(stateDir string, logger *logging.Logger) *Switch {
	return &Switch{
		path:   filepath.Join(stateDir, StopFileName),
		logger: logger,
	}
}

// Path returns the control file location.
func (s *Switch) Path() string { return s.path }

// Load reads the current stop state. A missing file means the switch was
// never engaged.
func (s *Switch) Load() (StopState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return StopState{}, nil
		}
		return StopState{}, err
	}
	var state StopState
	if err := json.Unmarshal(data, &state); err != nil {
		return StopState{}, err
	}
	return state, nil
}

// Stopped reports whether the switch is engaged. A control file that exists
// but cannot be read or parsed counts as engaged: when the operator's stop
// channel is broken, the orchestrator must not keep running.
func (s *Switch) Stopped() bool {
	state, err := s.Load()
	if err != nil {
		s.logger.Error("emergency-stop file unreadable, treating as engaged",
			"path", s.path, "error", err.Error())
		return true
	}
	return state.EmergencyStop
}

// Engage writes the stop file, halting new phase work.
func (s *Switch) Engage(reason, by string) error {
	s.logger.Warn("engaging emergency stop", "reason", reason, "by", by)
	return s.write(StopState{
		EmergencyStop: true,
		Reason:        reason,
		UpdatedAt:     time.Now().UTC(),
		UpdatedBy:     by,
	})
}

// Release clears the stop file so cycles can run again.
func (s *Switch) Release(by string) error {
	s.logger.Info("releasing emergency stop", "by", by)
	return s.write(StopState{
		EmergencyStop: false,
		UpdatedAt:     time.Now().UTC(),
		UpdatedBy:     by,
	})
}

// write persists the state atomically: marshal to a temp file in the same
// directory, then rename over the target.
func (s *Switch) write(state StopState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".stop-*.tmp")
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
