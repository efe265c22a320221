package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const (
	defaultSeedsPerHop = 5
	defaultCapacity    = 10000
	workingSetWindow   = 24 * time.Hour
)

// GraphStore is the Postgres-backed layered memory graph. Nodes live in
// memory_nodes and edges in memory_edges.
type GraphStore struct {
	db       *pgxpool.Pool
	embedder domain.EmbeddingClient
	capacity int
	logger   *zap.Logger
}

// NewGraphStore accepts a nil embedder, in which case layer queries fall back
// to Postgres full-text ranking.
func NewGraphStore(db *pgxpool.Pool, embedder domain.EmbeddingClient) *GraphStore {
	return &GraphStore{db: db, embedder: embedder, capacity: defaultCapacity, logger: zap.NewNop()}
}

func (s *GraphStore) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetCapacity sets the node count treated as a full memory in LayerStats.
func (s *GraphStore) SetCapacity(n int) {
	if n > 0 {
		s.capacity = n
	}
}

func (s *GraphStore) CreateNode(ctx context.Context, n *domain.MemoryNode) error {
	if !domain.ValidMemoryLayer(string(n.Layer)) {
		return fmt.Errorf("invalid memory layer %q", n.Layer)
	}

	if len(n.Embedding) == 0 && s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, n.Content)
		if err != nil {
			return fmt.Errorf("embed node content: %w", err)
		}
		n.Embedding = emb
	}

	var embedding *pgvector.Vector
	if len(n.Embedding) > 0 {
		v := pgvector.NewVector(n.Embedding)
		embedding = &v
	}
	if n.Relevance == 0 {
		n.Relevance = 0.5
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO memory_nodes (layer, content, embedding, relevance, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		n.Layer, n.Content, embedding, n.Relevance, n.Metadata,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
}

// GetNode returns nil, nil for an unknown id.
func (s *GraphStore) GetNode(ctx context.Context, id uuid.UUID) (*domain.MemoryNode, error) {
	n := &domain.MemoryNode{}
	err := s.db.QueryRow(ctx,
		`SELECT id, layer, content, relevance, metadata, created_at, updated_at
		 FROM memory_nodes WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.Layer, &n.Content, &n.Relevance, &n.Metadata, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

func (s *GraphStore) DeleteNode(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM memory_nodes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GraphStore) LayerStats(ctx context.Context) (domain.MemorySnapshot, error) {
	snapshot := domain.MemorySnapshot{LayerCounts: make(map[domain.MemoryLayer]int, len(domain.AllLayers))}
	for _, layer := range domain.AllLayers {
		snapshot.LayerCounts[layer] = 0
	}

	rows, err := s.db.Query(ctx, `SELECT layer, COUNT(*) FROM memory_nodes GROUP BY layer`)
	if err != nil {
		return snapshot, err
	}
	defer rows.Close()

	for rows.Next() {
		var layer domain.MemoryLayer
		var count int
		if err := rows.Scan(&layer, &count); err != nil {
			return snapshot, err
		}
		snapshot.LayerCounts[layer] = count
	}
	if err := rows.Err(); err != nil {
		return snapshot, err
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_nodes WHERE updated_at > NOW() - $1::INTERVAL`,
		fmt.Sprintf("%d hours", int(workingSetWindow.Hours())),
	).Scan(&snapshot.WorkingSetSize)
	if err != nil {
		return snapshot, err
	}

	snapshot.LoadFactor = domain.ClampUnit(float64(snapshot.Total()) / float64(s.capacity))
	return snapshot, nil
}

// seedNodes returns the best direct matches for hint within layer.
func (s *GraphStore) seedNodes(ctx context.Context, layer domain.MemoryLayer, hint string, limit int) ([]domain.NodeRef, error) {
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, hint)
		if err != nil {
			return nil, fmt.Errorf("embed probe hint: %w", err)
		}
		return s.scanRefs(ctx, layer,
			`SELECT id, 1 - (embedding <=> $2) AS score
			 FROM memory_nodes
			 WHERE layer = $1 AND embedding IS NOT NULL
			 ORDER BY embedding <=> $2, id
			 LIMIT $3`,
			layer, pgvector.NewVector(emb), limit)
	}

	return s.scanRefs(ctx, layer,
		`SELECT id, ts_rank(to_tsvector('english', content), plainto_tsquery('english', $2)) AS score
		 FROM memory_nodes
		 WHERE layer = $1 AND to_tsvector('english', content) @@ plainto_tsquery('english', $2)
		 ORDER BY score DESC, id
		 LIMIT $3`,
		layer, hint, limit)
}

func (s *GraphStore) scanRefs(ctx context.Context, layer domain.MemoryLayer, query string, args ...any) ([]domain.NodeRef, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.NodeRef
	for rows.Next() {
		ref := domain.NodeRef{Layer: layer}
		var score float64
		if err := rows.Scan(&ref.ID, &score); err != nil {
			return nil, err
		}
		ref.Score = float32(domain.ClampUnit(score))
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
