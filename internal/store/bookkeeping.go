package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/tracker"
)

var _ tracker.Tracker = (*Store)(nil)

// MarkState upserts the sync state of one item.
func (s *Store) MarkState(ctx context.Context, typ entity.Type, id string, state tracker.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_states (entity_type, id, state)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET state = excluded.state
	`, string(typ), id, string(state))
	if err != nil {
		return fmt.Errorf("mark state %s/%s: %w", typ, id, err)
	}
	return nil
}

// GetState returns the sync state of one item, StateSynced when absent.
func (s *Store) GetState(ctx context.Context, typ entity.Type, id string) (tracker.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sync_states WHERE entity_type = ? AND id = ?`,
		string(typ), id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.StateSynced, nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s/%s: %w", typ, id, err)
	}
	return tracker.ParseState(raw)
}

// DeleteState removes the sync state of one item.
func (s *Store) DeleteState(ctx context.Context, typ entity.Type, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_states WHERE entity_type = ? AND id = ?`, string(typ), id)
	if err != nil {
		return fmt.Errorf("delete state %s/%s: %w", typ, id, err)
	}
	return nil
}

// ListStates returns recorded states for typ, or for every type when typ
// is empty.
func (s *Store) ListStates(ctx context.Context, typ entity.Type) ([]tracker.StateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, id, state FROM sync_states
		WHERE ? = '' OR entity_type = ?
		ORDER BY entity_type ASC, id ASC
	`, string(typ), string(typ))
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	out := make([]tracker.StateRecord, 0)
	for rows.Next() {
		var t, id, raw string
		if err := rows.Scan(&t, &id, &raw); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		st, err := tracker.ParseState(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tracker.StateRecord{EntityType: entity.Type(t), ID: id, State: st})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return out, nil
}

// RecordFailure upserts the failure record for one item and bumps its
// attempt counter.
func (s *Store) RecordFailure(ctx context.Context, item tracker.FailedItem) error {
	if err := entity.CheckTimestamp(item.FailedAt); err != nil {
		return fmt.Errorf("record failure %s/%s: %w", item.EntityType, item.ID, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_items
		(entity_type, id, operation, reason, failed_at, cycle_id, payload, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			operation = excluded.operation,
			reason    = excluded.reason,
			failed_at = excluded.failed_at,
			cycle_id  = excluded.cycle_id,
			payload   = excluded.payload,
			attempts  = failed_items.attempts + 1
	`,
		string(item.EntityType),
		item.ID,
		item.Operation.String(),
		item.Reason,
		entity.ToNanos(item.FailedAt),
		item.CycleID,
		item.Payload,
	)
	if err != nil {
		return fmt.Errorf("record failure %s/%s: %w", item.EntityType, item.ID, err)
	}
	return nil
}

// ListFailures returns failure records for typ, or for every type when typ
// is empty.
func (s *Store) ListFailures(ctx context.Context, typ entity.Type) ([]tracker.FailedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, id, operation, reason, failed_at, cycle_id, payload, attempts
		FROM failed_items
		WHERE ? = '' OR entity_type = ?
		ORDER BY entity_type ASC, id ASC
	`, string(typ), string(typ))
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	out := make([]tracker.FailedItem, 0)
	for rows.Next() {
		var (
			item     tracker.FailedItem
			t, op    string
			failedAt int64
		)
		if err := rows.Scan(&t, &item.ID, &op, &item.Reason, &failedAt, &item.CycleID, &item.Payload, &item.Attempts); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		kind, err := reconcile.ParseKind(op)
		if err != nil {
			return nil, fmt.Errorf("failure %s/%s: %w", t, item.ID, err)
		}
		item.EntityType = entity.Type(t)
		item.Operation = kind
		item.FailedAt = entity.FromNanos(failedAt)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// ClearFailure removes the failure record for one item.
func (s *Store) ClearFailure(ctx context.Context, typ entity.Type, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM failed_items WHERE entity_type = ? AND id = ?`, string(typ), id)
	if err != nil {
		return fmt.Errorf("clear failure %s/%s: %w", typ, id, err)
	}
	return nil
}

// ClearFailures removes every failure record of typ, or of every type
// when typ is empty. It returns the number of records removed.
func (s *Store) ClearFailures(ctx context.Context, typ entity.Type) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM failed_items WHERE ? = '' OR entity_type = ?`, string(typ), string(typ))
	if err != nil {
		return 0, fmt.Errorf("clear failures: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear failures: rows affected: %w", err)
	}
	return n, nil
}

// GetWatermark returns the watermark of typ, the zero time when unset.
func (s *Store) GetWatermark(ctx context.Context, typ entity.Type) (time.Time, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced FROM watermarks WHERE entity_type = ?`, string(typ),
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get watermark %s: %w", typ, err)
	}
	return entity.FromNanos(n), nil
}

// SetWatermark stores the watermark of typ.
func (s *Store) SetWatermark(ctx context.Context, typ entity.Type, ts time.Time) error {
	if err := entity.CheckTimestamp(ts); err != nil {
		return fmt.Errorf("set watermark %s: %w", typ, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (entity_type, last_synced)
		VALUES (?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET last_synced = excluded.last_synced
	`, string(typ), entity.ToNanos(ts))
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", typ, err)
	}
	return nil
}

// ListWatermarks returns every stored watermark.
func (s *Store) ListWatermarks(ctx context.Context) (map[entity.Type]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_type, last_synced FROM watermarks`)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	out := make(map[entity.Type]time.Time)
	for rows.Next() {
		var (
			t string
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		out[entity.Type(t)] = entity.FromNanos(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}
	return out, nil
}

// ListTypes returns every entity type that has a collection table.
func (s *Store) ListTypes(ctx context.Context) ([]entity.Type, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_type FROM collections ORDER BY entity_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	defer rows.Close()

	out := make([]entity.Type, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan type: %w", err)
		}
		out = append(out, entity.Type(t))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate types: %w", err)
	}
	return out, nil
}

// CountRows returns the number of replicated rows of typ. A type without
// a collection table has zero rows.
func (s *Store) CountRows(ctx context.Context, typ entity.Type) (int, error) {
	if err := typ.Validate(); err != nil {
		return 0, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collections WHERE entity_type = ?`, string(typ)).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", typ, err)
	}
	if exists == 0 {
		return 0, nil
	}

	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, TableName(typ))).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", typ, err)
	}
	return n, nil
}

// CollectionStats summarizes the replicated rows of one type.
type CollectionStats struct {
	Rows int

	// Newest is the latest lastUpdated among the rows, zero when empty.
	Newest time.Time

	// Fingerprint is entity.Fingerprint over the stored row digests. Two
	// replicas holding the same entities have the same fingerprint.
	Fingerprint string
}

// Stats returns the CollectionStats of typ. A type without a collection
// table has empty stats.
func (s *Store) Stats(ctx context.Context, typ entity.Type) (CollectionStats, error) {
	var st CollectionStats
	if err := typ.Validate(); err != nil {
		return st, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collections WHERE entity_type = ?`, string(typ)).Scan(&exists)
	if err != nil {
		return st, fmt.Errorf("stats %s: %w", typ, err)
	}
	if exists == 0 {
		return st, nil
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, last_updated, digest FROM %s`, TableName(typ)))
	if err != nil {
		return st, fmt.Errorf("stats %s: %w", typ, err)
	}
	defer rows.Close()

	digests := make(map[string]string)
	for rows.Next() {
		var (
			id, digest string
			updated    int64
		)
		if err := rows.Scan(&id, &updated, &digest); err != nil {
			return st, fmt.Errorf("scan %s stats: %w", typ, err)
		}
		digests[id] = digest
		st.Newest = entity.MaxTime(st.Newest, entity.FromNanos(updated))
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate %s stats: %w", typ, err)
	}

	st.Rows = len(digests)
	st.Fingerprint = entity.Fingerprint(digests)
	return st, nil
}
