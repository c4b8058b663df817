package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/keygate/keygate/internal/model"
	"github.com/lib/pq"
)

// KeyEventRepository provides database access for the key audit trail.
type KeyEventRepository struct {
	repo *Repository
}

// NewKeyEventRepository creates a new KeyEventRepository.
func NewKeyEventRepository(repo *Repository) *KeyEventRepository {
	return &KeyEventRepository{repo: repo}
}

// BulkInsert inserts events idempotently; a replayed stream entry is skipped.
func (r *KeyEventRepository) BulkInsert(ctx context.Context, events []*model.KeyEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO key_events (
			id, stream_id, type, app_id, keys, actor,
			target_id, count, enabled, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (stream_id) DO NOTHING
	`

	for _, event := range events {
		keys := event.Keys
		if keys == nil {
			keys = []string{}
		}
		batch.Queue(query,
			event.ID,
			event.StreamID,
			event.Type,
			nullableString(event.AppID),
			pq.Array(keys),
			nullableString(event.Actor),
			nullableString(event.TargetID),
			event.Count,
			event.Enabled,
			event.OccurredAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// ListByApp returns the most recent events recorded for appID.
func (r *KeyEventRepository) ListByApp(ctx context.Context, appID string, limit int) ([]*model.KeyEvent, error) {
	query := `
		SELECT id, stream_id, type, COALESCE(app_id, ''), keys,
		       COALESCE(actor, ''), COALESCE(target_id, ''), count, enabled, occurred_at
		FROM key_events
		WHERE app_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.repo.pool.Query(ctx, query, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("query key events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.KeyEvent, 0)
	for rows.Next() {
		var event model.KeyEvent
		if err := rows.Scan(
			&event.ID,
			&event.StreamID,
			&event.Type,
			&event.AppID,
			&event.Keys,
			&event.Actor,
			&event.TargetID,
			&event.Count,
			&event.Enabled,
			&event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan key event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key events: %w", err)
	}

	return events, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
