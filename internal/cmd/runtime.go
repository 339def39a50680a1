package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/approval"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/consensus"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/cycle"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/discussion"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/quarantine"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/rebalance"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/safety"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/synthesis"
)

// runtime bundles the wired components every subcommand draws from.
type runtime struct {
	cfg        *config.Config
	logger     *logging.Logger
	roster     *agent.Roster
	stop       *safety.Switch
	approvals  *approval.Store
	plans      *cycle.PlanStore
	cycles     *cycle.Store
	controller *cycle.Controller
}

// newRuntime loads and validates the configuration and wires every
// component against the state directory.
func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verrs := cfg.Validate(); len(verrs) > 0 {
		return nil, config.ValidationErrors(verrs)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	roster, err := agent.NewRoster(cfg, logger)
	if err != nil {
		return nil, err
	}

	stateDir := cfg.Paths.StateDir
	approvals, err := approval.NewStore(stateDir, logger)
	if err != nil {
		return nil, err
	}
	cycles, err := cycle.NewStore(stateDir, logger)
	if err != nil {
		return nil, err
	}
	plans := cycle.NewPlanStore(stateDir, logger)

	gate, err := quarantine.NewGate(cfg.Quarantine, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build quarantine gate: %w", err)
	}

	notifier := consensus.NotifierFunc(func(req *approval.Request) {
		fmt.Fprintf(os.Stderr, "approval request %s raised: %s\n", req.ID, req.Reason)
	})
	escalator, err := consensus.NewEscalator(roster, approvals, cfg.Consensus, stateDir, notifier, logger)
	if err != nil {
		return nil, err
	}

	stop := safety.NewSwitch(stateDir, logger)
	guard := safety.NewGuard(stop, approvals)
	artifacts := filepath.Join(stateDir, "cycles")
	controller := cycle.NewController(cycle.Deps{
		Config:      cfg,
		Roster:      roster,
		Stop:        stop,
		Approvals:   approvals,
		Collector:   cycle.NewCollector(roster, gate, escalator, cfg.Quarantine.AutoEscalate, guard, logger),
		Synthesizer: synthesis.NewSynthesizer(roster, cfg.Synthesis, artifacts, escalator, guard, logger),
		Rebalancer:  rebalance.NewRebalancer(roster, cfg.Rebalance, artifacts, escalator, guard, logger),
		Discussion:  discussion.NewLoop(roster, cfg.Discussion, guard, logger),
		Plans:       plans,
		Cycles:      cycles,
		Logger:      logger,
	})

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		roster:     roster,
		stop:       stop,
		approvals:  approvals,
		plans:      plans,
		cycles:     cycles,
		controller: controller,
	}, nil
}

// ExitCode maps a command error to the binary's exit code. Config
// validation problems are usage errors.
func ExitCode(err error) int {
	if err == nil {
		return errors.ExitOK
	}
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		return errors.ExitUsage
	}
	return errors.ExitCode(err)
}
