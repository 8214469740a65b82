// Package sqlite implements aidra.MemoryBackend using pure-Go SQLite.
//
// Swap in a different backend (e.g. Postgres, see store/postgres) by
// implementing aidra.MemoryBackend with your own package.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	aidra "github.com/nevindra/aidra"
	_ "modernc.org/sqlite"
)

// Store implements aidra.MemoryBackend backed by SQLite. One row per
// (agentID, label). Each call opens and closes its own connection rather
// than holding a persistent pool, since memory reads/writes are infrequent
// relative to message appends.
type Store struct {
	dbPath string
}

var _ aidra.MemoryBackend = (*Store)(nil)

// New creates a memory backend using a local SQLite file.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) openDB() (*sql.DB, error) {
	return sql.Open("sqlite", s.dbPath)
}

// Init creates the memory_blocks table if it does not already exist.
func (s *Store) Init(ctx context.Context) error {
	db, err := s.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memory_blocks (
		agent_id TEXT NOT NULL,
		label TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		protected INTEGER NOT NULL DEFAULT 0,
		read_only INTEGER NOT NULL DEFAULT 0,
		content_limit INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (agent_id, label)
	)`)
	return err
}

// LoadAll returns every block for agentID, ordered by label for a
// deterministic cache rebuild on MemoryRepository.Load.
func (s *Store) LoadAll(ctx context.Context, agentID string) ([]aidra.MemoryBlock, error) {
	db, err := s.openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT label, description, content, protected, read_only, content_limit, updated_at
		 FROM memory_blocks WHERE agent_id = ? ORDER BY label`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []aidra.MemoryBlock
	for rows.Next() {
		var b aidra.MemoryBlock
		var protected, readOnly int
		var updatedAt int64
		if err := rows.Scan(&b.Label, &b.Description, &b.Content, &protected, &readOnly, &b.Limit, &updatedAt); err != nil {
			return nil, err
		}
		b.Protected = protected != 0
		b.ReadOnly = readOnly != 0
		b.UpdatedAt = time.Unix(updatedAt, 0)
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// Upsert creates or replaces the row for (agentID, block.Label).
func (s *Store) Upsert(ctx context.Context, agentID string, block aidra.MemoryBlock) error {
	db, err := s.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT INTO memory_blocks
		(agent_id, label, description, content, protected, read_only, content_limit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id, label) DO UPDATE SET
			description = excluded.description,
			content = excluded.content,
			protected = excluded.protected,
			read_only = excluded.read_only,
			content_limit = excluded.content_limit,
			updated_at = excluded.updated_at`,
		agentID, block.Label, block.Description, block.Content,
		boolToInt(block.Protected), boolToInt(block.ReadOnly), block.Limit, block.UpdatedAt.Unix())
	return err
}

// Delete removes the row for (agentID, label). A no-op if absent.
func (s *Store) Delete(ctx context.Context, agentID, label string) error {
	db, err := s.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `DELETE FROM memory_blocks WHERE agent_id = ? AND label = ?`, agentID, label)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
