package service

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

// Cognition defaults
const (
	DefaultMaxReasoningDepth     = 5
	DefaultExplorationThreshold  = 0.6
	DefaultFusionThreshold       = 0.7
	DefaultConsolidationInterval = 6 * time.Hour
	DefaultMaxActiveTrajectories = 4
	DefaultMaxRetrievedNodes     = 20
	DefaultProbeDepth            = 3
	DefaultMaxExplorationPaths   = 2
)

// Config is fixed when a ControlLoop is constructed.
type Config struct {
	MaxReasoningDepth    int
	ExplorationThreshold float64
	FusionThreshold      float64
	// ConsolidationInterval drives the ConsolidationScheduler, not per-query logic.
	ConsolidationInterval time.Duration
	MaxActiveTrajectories int
	MaxRetrievedNodes     int
	ProbeDepth            int
	MaxExplorationPaths   int
	ExplorationEnabled    bool
}

func DefaultConfig() Config {
	return Config{
		MaxReasoningDepth:     DefaultMaxReasoningDepth,
		ExplorationThreshold:  DefaultExplorationThreshold,
		FusionThreshold:       DefaultFusionThreshold,
		ConsolidationInterval: DefaultConsolidationInterval,
		MaxActiveTrajectories: DefaultMaxActiveTrajectories,
		MaxRetrievedNodes:     DefaultMaxRetrievedNodes,
		ProbeDepth:            DefaultProbeDepth,
		MaxExplorationPaths:   DefaultMaxExplorationPaths,
		ExplorationEnabled:    true,
	}
}

func (c Config) Validate() error {
	if c.MaxReasoningDepth < 1 {
		return fmt.Errorf("%w: max_reasoning_depth must be >= 1, got %d", ErrInvalidConfiguration, c.MaxReasoningDepth)
	}
	if c.ExplorationThreshold < 0 || c.ExplorationThreshold > 1 {
		return fmt.Errorf("%w: exploration_threshold must be in [0,1], got %v", ErrInvalidConfiguration, c.ExplorationThreshold)
	}
	if c.FusionThreshold < 0 || c.FusionThreshold > 1 {
		return fmt.Errorf("%w: fusion_threshold must be in [0,1], got %v", ErrInvalidConfiguration, c.FusionThreshold)
	}
	if c.ConsolidationInterval < 0 {
		return fmt.Errorf("%w: consolidation_interval must not be negative", ErrInvalidConfiguration)
	}
	if c.MaxActiveTrajectories < 1 {
		return fmt.Errorf("%w: max_active_trajectories must be >= 1, got %d", ErrInvalidConfiguration, c.MaxActiveTrajectories)
	}
	if c.MaxRetrievedNodes < 1 {
		return fmt.Errorf("%w: max_retrieved_nodes must be >= 1, got %d", ErrInvalidConfiguration, c.MaxRetrievedNodes)
	}
	if c.ProbeDepth < 1 {
		return fmt.Errorf("%w: probe_depth must be >= 1, got %d", ErrInvalidConfiguration, c.ProbeDepth)
	}
	if c.MaxExplorationPaths < 0 {
		return fmt.Errorf("%w: max_exploration_paths must not be negative", ErrInvalidConfiguration)
	}
	return nil
}
