package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Journal entry kinds.
const (
	KindWorldCreated     = "world_created"
	KindWorldDestroyed   = "world_destroyed"
	KindWorldActivated   = "world_activated"
	KindWorldDeactivated = "world_deactivated"
	KindEntityCreated    = "entity_created"
	KindEntityDestroyed  = "entity_destroyed"
)

// JournalEntry is one lifecycle transition as observed by the journal
// extension. EntityID is uuid.Nil for world transitions.
type JournalEntry struct {
	Kind       string
	WorldID    uuid.UUID
	EntityID   uuid.UUID
	Attributes int
	At         time.Time
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append writes a batch of entries in a single transaction.
func (r *JournalRepo) Append(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		var entityID *string
		if e.EntityID != uuid.Nil {
			s := e.EntityID.String()
			entityID = &s
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO lifecycle_journal (kind, world_id, entity_id, attributes, recorded_at)
			 VALUES ($1, $2::uuid, $3::uuid, $4, $5)`,
			e.Kind, e.WorldID.String(), entityID, e.Attributes, e.At,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// CountByWorld returns how many entries were recorded for a world.
func (r *JournalRepo) CountByWorld(ctx context.Context, worldID uuid.UUID) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM lifecycle_journal WHERE world_id = $1::uuid`,
		worldID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("journal count: %w", err)
	}
	return n, nil
}
