package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultEdgeDecayRate      = 0.05
	DefaultPendingConnections = 1024
	schedulerRunTimeout       = 5 * time.Minute
)

// ScheduleResult reports one consolidation pass.
type ScheduleResult struct {
	ConnectionsLinked int                    `json:"connections_linked"`
	Decay             *domain.EdgeDecayResult `json:"decay,omitempty"`
}

// ConsolidationObserver receives the outcome of each successful pass.
type ConsolidationObserver interface {
	ObserveConsolidation(linked int, decay domain.EdgeDecayResult)
}

// ConsolidationScheduler periodically persists fusion connections gathered by
// completed queries and applies edge decay to the memory graph.
type ConsolidationScheduler struct {
	linker     domain.FusionLinker
	maintainer domain.EdgeMaintainer
	logger     *zap.Logger
	observer   ConsolidationObserver

	decayRate float64
	rules     domain.PruningRules
	capacity  int

	mu      sync.Mutex
	pending []domain.FusionConnection
	dropped int

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewConsolidationScheduler accepts nil for either collaborator; the matching
// step is skipped.
func NewConsolidationScheduler(linker domain.FusionLinker, maintainer domain.EdgeMaintainer, interval time.Duration, logger *zap.Logger) *ConsolidationScheduler {
	if interval <= 0 {
		interval = DefaultConsolidationInterval
	}
	return &ConsolidationScheduler{
		linker:     linker,
		maintainer: maintainer,
		logger:     logger,
		decayRate:  DefaultEdgeDecayRate,
		rules:      domain.DefaultPruningRules(),
		capacity:   DefaultPendingConnections,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

func (s *ConsolidationScheduler) SetDecay(rate float64, rules domain.PruningRules) {
	s.decayRate = rate
	s.rules = rules
}

func (s *ConsolidationScheduler) SetObserver(o ConsolidationObserver) {
	s.observer = o
}

// Enqueue buffers connections for the next pass. When the buffer is full the
// oldest connections are dropped.
func (s *ConsolidationScheduler) Enqueue(connections []domain.FusionConnection) {
	if len(connections) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, connections...)
	if over := len(s.pending) - s.capacity; over > 0 {
		s.pending = append([]domain.FusionConnection(nil), s.pending[over:]...)
		s.dropped += over
	}
}

// requeue puts a failed batch back ahead of anything enqueued during the pass,
// so overflow still drops the oldest connections.
func (s *ConsolidationScheduler) requeue(batch []domain.FusionConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]domain.FusionConnection, 0, len(batch)+len(s.pending))
	merged = append(merged, batch...)
	merged = append(merged, s.pending...)
	if over := len(merged) - s.capacity; over > 0 {
		merged = merged[over:]
		s.dropped += over
	}
	s.pending = merged
}

// Pending returns the number of buffered connections.
func (s *ConsolidationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *ConsolidationScheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("consolidation scheduler started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), schedulerRunTimeout)
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("scheduled consolidation failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("consolidation scheduler stopped")
				return
			}
		}
	}()
}

func (s *ConsolidationScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunOnce links buffered connections, then decays edges. Connections that fail
// to link are put back for the next pass.
func (s *ConsolidationScheduler) RunOnce(ctx context.Context) (*ScheduleResult, error) {
	result := &ScheduleResult{}

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Warn("fusion connections dropped before consolidation", zap.Int("dropped", dropped))
	}

	if len(batch) > 0 {
		if s.linker == nil {
			s.logger.Debug("no fusion linker configured, discarding connections", zap.Int("count", len(batch)))
		} else {
			linked, err := s.linker.LinkNodes(ctx, batch)
			if err != nil {
				s.requeue(batch)
				return result, err
			}
			result.ConnectionsLinked = linked
		}
	}

	if s.maintainer != nil {
		decay, err := s.maintainer.DecayEdges(ctx, s.decayRate, s.rules)
		if err != nil {
			return result, err
		}
		result.Decay = decay
	}

	if s.observer != nil {
		var decay domain.EdgeDecayResult
		if result.Decay != nil {
			decay = *result.Decay
		}
		s.observer.ObserveConsolidation(result.ConnectionsLinked, decay)
	}

	s.logger.Info("consolidation pass completed",
		zap.Int("connections_linked", result.ConnectionsLinked),
		zap.Bool("decayed", result.Decay != nil))

	return result, nil
}
