package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// minHopActivation stops hop expansion along paths that have decayed away.
const minHopActivation = 0.05

func (s *GraphStore) CreateEdge(ctx context.Context, edge *domain.GraphEdge) error {
	return createEdge(ctx, s.db, edge)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createEdge(ctx context.Context, q querier, edge *domain.GraphEdge) error {
	err := q.QueryRow(ctx,
		`INSERT INTO memory_edges (source_id, target_id, relation_type, strength)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (source_id, target_id, relation_type) DO UPDATE
		 SET strength = GREATEST(memory_edges.strength, EXCLUDED.strength)
		 RETURNING id, created_at, last_traversed_at, traversal_count`,
		edge.SourceID, edge.TargetID, edge.RelationType, edge.Strength,
	).Scan(&edge.ID, &edge.CreatedAt, &edge.LastTraversedAt, &edge.TraversalCount)
	if err != nil {
		return err
	}

	// Symmetric relations get a reverse edge
	if domain.SymmetricRelations[edge.RelationType] && edge.SourceID != edge.TargetID {
		var id uuid.UUID
		return q.QueryRow(ctx,
			`INSERT INTO memory_edges (source_id, target_id, relation_type, strength)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (source_id, target_id, relation_type) DO UPDATE
			 SET strength = GREATEST(memory_edges.strength, EXCLUDED.strength)
			 RETURNING id`,
			edge.TargetID, edge.SourceID, edge.RelationType, edge.Strength,
		).Scan(&id)
	}
	return nil
}

// GetNeighbors returns outgoing edges of id whose target lies in the same layer.
func (s *GraphStore) GetNeighbors(ctx context.Context, id uuid.UUID, layer domain.MemoryLayer) ([]domain.GraphEdge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.source_id, e.target_id, e.relation_type, e.strength, e.created_at, e.last_traversed_at, e.traversal_count
		 FROM memory_edges e
		 JOIN memory_nodes n ON n.id = e.target_id
		 WHERE e.source_id = $1 AND n.layer = $2
		 ORDER BY e.strength DESC, e.target_id`,
		id, layer,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.GraphEdge
	for rows.Next() {
		var edge domain.GraphEdge
		if err := rows.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.RelationType,
			&edge.Strength, &edge.CreatedAt, &edge.LastTraversedAt, &edge.TraversalCount); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// QueryLayer returns nodes in layer ranked by similarity to hint. depth 1 is a
// direct similarity lookup; each extra level follows one more hop of
// same-layer edges. It never writes.
func (s *GraphStore) QueryLayer(ctx context.Context, layer domain.MemoryLayer, hint string, depth int) ([]domain.NodeRef, error) {
	if !domain.ValidMemoryLayer(string(layer)) {
		return nil, fmt.Errorf("invalid memory layer %q", layer)
	}
	if depth < 1 {
		depth = 1
	}

	seeds, err := s.seedNodes(ctx, layer, hint, defaultSeedsPerHop*depth)
	if err != nil {
		return nil, err
	}

	refs, skipped, err := expandHops(ctx, seeds, depth-1, func(ctx context.Context, id uuid.UUID) ([]domain.GraphEdge, error) {
		return s.GetNeighbors(ctx, id, layer)
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("hop expansion skipped nodes",
			zap.String("layer", string(layer)),
			zap.Int("skipped", skipped),
			zap.Int("results", len(refs)))
	}
	return refs, nil
}

type neighborFunc func(ctx context.Context, id uuid.UUID) ([]domain.GraphEdge, error)

// expandHops runs a breadth-first spread from seeds. Activation decays by edge
// strength and the relation multiplier per hop, and each node keeps its best
// activation. The result is sorted by score then id. skipped counts nodes
// whose neighbours could not be loaded.
func expandHops(ctx context.Context, seeds []domain.NodeRef, hops int, neighbors neighborFunc) ([]domain.NodeRef, int, error) {
	best := make(map[uuid.UUID]domain.NodeRef, len(seeds))
	for _, seed := range seeds {
		if cur, ok := best[seed.ID]; !ok || seed.Score > cur.Score {
			best[seed.ID] = seed
		}
	}

	frontier := make([]domain.NodeRef, 0, len(best))
	for _, ref := range best {
		frontier = append(frontier, ref)
	}
	sortRefs(frontier)

	visited := make(map[uuid.UUID]bool, len(best))
	skipped := 0
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		var next []domain.NodeRef
		for _, item := range frontier {
			if visited[item.ID] {
				continue
			}
			visited[item.ID] = true

			edges, err := neighbors(ctx, item.ID)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, skipped, ctxErr
				}
				skipped++
				continue
			}

			for _, edge := range edges {
				multiplier, ok := domain.RelationDecayMultipliers[edge.RelationType]
				if !ok {
					multiplier = 0.5
				}
				activation := item.Score * edge.Strength * float32(multiplier)
				if activation < minHopActivation {
					continue
				}
				if cur, ok := best[edge.TargetID]; ok && cur.Score >= activation {
					continue
				}
				ref := domain.NodeRef{ID: edge.TargetID, Layer: item.Layer, Score: activation}
				best[edge.TargetID] = ref
				next = append(next, ref)
			}
		}
		sortRefs(next)
		frontier = next
	}

	out := make([]domain.NodeRef, 0, len(best))
	for _, ref := range best {
		out = append(out, ref)
	}
	sortRefs(out)
	return out, skipped, nil
}

func sortRefs(refs []domain.NodeRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		return bytes.Compare(refs[i].ID[:], refs[j].ID[:]) < 0
	})
}

// LinkNodes stores each fusion connection as edges between consecutive node
// pairs, in one transaction.
func (s *GraphStore) LinkNodes(ctx context.Context, connections []domain.FusionConnection) (int, error) {
	if len(connections) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	linked := 0
	for _, edge := range fusionEdges(connections) {
		if err := createEdge(ctx, tx, &edge); err != nil {
			return 0, fmt.Errorf("link %s -> %s: %w", edge.SourceID, edge.TargetID, err)
		}
		linked++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return linked, nil
}

func fusionEdges(connections []domain.FusionConnection) []domain.GraphEdge {
	var edges []domain.GraphEdge
	for _, c := range connections {
		relation := domain.RelationForFusion(c.Kind)
		strength := float32(domain.ClampUnit(c.Confidence))
		for i := 0; i+1 < len(c.NodeIDs); i++ {
			if c.NodeIDs[i] == c.NodeIDs[i+1] {
				continue
			}
			edges = append(edges, domain.GraphEdge{
				SourceID:     c.NodeIDs[i],
				TargetID:     c.NodeIDs[i+1],
				RelationType: relation,
				Strength:     strength,
			})
		}
	}
	return edges
}

// DecayEdges applies exponential time decay to every edge and then prunes
// according to rules.
func (s *GraphStore) DecayEdges(ctx context.Context, decayRate float64, rules domain.PruningRules) (*domain.EdgeDecayResult, error) {
	result := &domain.EdgeDecayResult{}

	// strength_new = strength * exp(-rate * hours_since_traversal)
	tag, err := s.db.Exec(ctx,
		`UPDATE memory_edges
		 SET strength = GREATEST(
		     strength * exp(-$1 * EXTRACT(EPOCH FROM (NOW() - COALESCE(last_traversed_at, created_at))) / 3600),
		     0.01
		 )
		 WHERE COALESCE(last_traversed_at, created_at) < NOW() - INTERVAL '1 hour'`,
		decayRate,
	)
	if err != nil {
		return nil, err
	}
	result.Decayed = int(tag.RowsAffected())

	tag, err = s.db.Exec(ctx, `DELETE FROM memory_edges WHERE strength < $1`, rules.StrengthThreshold)
	if err != nil {
		return nil, err
	}
	result.Pruned += int(tag.RowsAffected())

	if rules.StaleThreshold > 0 {
		tag, err = s.db.Exec(ctx,
			`DELETE FROM memory_edges
			 WHERE COALESCE(last_traversed_at, created_at) < NOW() - $1::INTERVAL
			   AND traversal_count < 3`,
			fmt.Sprintf("%d hours", int(rules.StaleThreshold.Hours())),
		)
		if err != nil {
			return nil, err
		}
		result.Pruned += int(tag.RowsAffected())
	}

	if rules.MaxEdgesPerNode > 0 {
		tag, err = s.db.Exec(ctx,
			`DELETE FROM memory_edges
			 WHERE id IN (
			     SELECT id FROM (
			         SELECT id, ROW_NUMBER() OVER (PARTITION BY source_id ORDER BY strength DESC) AS rn
			         FROM memory_edges
			     ) ranked
			     WHERE rn > $1
			 )`,
			rules.MaxEdgesPerNode,
		)
		if err != nil {
			return nil, err
		}
		result.Pruned += int(tag.RowsAffected())
	}

	result.Processed = result.Decayed + result.Pruned
	return result, nil
}
