package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	aidra "github.com/nevindra/aidra"
)

// MemoryStore implements aidra.MemoryBackend backed by PostgreSQL.
//
// Use NewMemoryStore with Store.Pool() so both share the same pool.
type MemoryStore struct {
	pool *pgxpool.Pool
}

var _ aidra.MemoryBackend = (*MemoryStore)(nil)

func NewMemoryStore(pool *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{pool: pool}
}

func (s *MemoryStore) LoadAll(ctx context.Context, agentID string) ([]aidra.MemoryBlock, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label, description, content, protected, read_only, content_limit, updated_at
		 FROM memory_blocks WHERE agent_id = $1 ORDER BY label`, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load memory blocks: %w", err)
	}
	defer rows.Close()

	var blocks []aidra.MemoryBlock
	for rows.Next() {
		var b aidra.MemoryBlock
		var updatedAt int64
		if err := rows.Scan(&b.Label, &b.Description, &b.Content, &b.Protected, &b.ReadOnly, &b.Limit, &updatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan memory block: %w", err)
		}
		b.UpdatedAt = time.Unix(updatedAt, 0)
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *MemoryStore) Upsert(ctx context.Context, agentID string, block aidra.MemoryBlock) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_blocks (agent_id, label, description, content, protected, read_only, content_limit, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (agent_id, label) DO UPDATE SET
			description = EXCLUDED.description,
			content = EXCLUDED.content,
			protected = EXCLUDED.protected,
			read_only = EXCLUDED.read_only,
			content_limit = EXCLUDED.content_limit,
			updated_at = EXCLUDED.updated_at`,
		agentID, block.Label, block.Description, block.Content, block.Protected, block.ReadOnly, block.Limit, block.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert memory block: %w", err)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, agentID, label string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM memory_blocks WHERE agent_id = $1 AND label = $2`, agentID, label)
	if err != nil {
		return fmt.Errorf("postgres: delete memory block: %w", err)
	}
	return nil
}
