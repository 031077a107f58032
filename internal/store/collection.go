package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/replica/internal/entity"
)

// EntityStore is typed CRUD persistence for one entity collection.
//
// Get and Update return ErrNotFound when nothing matches. QueryAll
// returns every entity ordered by local key.
type EntityStore[E entity.Entity] interface {
	Get(ctx context.Context, id string) (entity.Stored[E], error)
	QueryAll(ctx context.Context) ([]entity.Stored[E], error)
	Insert(ctx context.Context, e E) (int64, error)
	Update(ctx context.Context, e E, localKey int64) error
	Delete(ctx context.Context, e E) error
}

// TxStore is an EntityStore that can scope a batch of calls in one
// transaction. fn's store is only valid until fn returns; the transaction
// commits when fn returns nil and rolls back otherwise.
type TxStore[E entity.Entity] interface {
	EntityStore[E]
	Transact(ctx context.Context, fn func(tx EntityStore[E]) error) error
}

// Collection is the SQLite EntityStore for one entity type.
type Collection[E entity.Entity] struct {
	typ   entity.Type
	table string
	codec entity.Codec[E]
	db    *sql.DB
	q     querier
	inTx  bool
}

var _ TxStore[entity.Record] = (*Collection[entity.Record])(nil)

// TableName returns the table backing a collection.
func TableName(typ entity.Type) string {
	return "entity_" + string(typ)
}

// OpenCollection returns the collection for typ, creating its table on
// first use.
func OpenCollection[E entity.Entity](ctx context.Context, s *Store, typ entity.Type, codec entity.Codec[E]) (*Collection[E], error) {
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	table := TableName(typ)

	// typ is validated against a strict identifier pattern above.
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			local_key    INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT    NOT NULL UNIQUE,
			last_updated INTEGER NOT NULL,
			payload      BLOB    NOT NULL,
			digest       TEXT    NOT NULL
		)
	`, table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("open collection %s: create table: %w", typ, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (entity_type, table_name)
		VALUES (?, ?)
		ON CONFLICT(entity_type) DO NOTHING
	`, string(typ), table)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: register: %w", typ, err)
	}

	return &Collection[E]{typ: typ, table: table, codec: codec, db: s.db, q: s.db}, nil
}

// EntityType returns the collection's entity type.
func (c *Collection[E]) EntityType() entity.Type {
	return c.typ
}

// Get implements EntityStore.
func (c *Collection[E]) Get(ctx context.Context, id string) (entity.Stored[E], error) {
	var (
		key     int64
		payload []byte
	)
	err := c.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT local_key, payload FROM %s WHERE id = ?`, c.table), id,
	).Scan(&key, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Stored[E]{}, fmt.Errorf("get %s/%s: %w", c.typ, id, ErrNotFound)
	}
	if err != nil {
		return entity.Stored[E]{}, fmt.Errorf("get %s/%s: %w", c.typ, id, err)
	}

	e, err := c.codec.Decode(payload)
	if err != nil {
		return entity.Stored[E]{}, fmt.Errorf("get %s/%s: %w", c.typ, id, err)
	}
	return entity.Stored[E]{Entity: e, LocalKey: key}, nil
}

// QueryAll implements EntityStore.
func (c *Collection[E]) QueryAll(ctx context.Context) ([]entity.Stored[E], error) {
	rows, err := c.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT local_key, payload FROM %s ORDER BY local_key ASC`, c.table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.typ, err)
	}
	defer rows.Close()

	out := make([]entity.Stored[E], 0)
	for rows.Next() {
		var (
			key     int64
			payload []byte
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.typ, err)
		}
		e, err := c.codec.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("query %s: local key %d: %w", c.typ, key, err)
		}
		out = append(out, entity.Stored[E]{Entity: e, LocalKey: key})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c.typ, err)
	}
	return out, nil
}

// Insert implements EntityStore. Inserting an id that already exists
// fails on the UNIQUE index.
func (c *Collection[E]) Insert(ctx context.Context, e E) (int64, error) {
	payload, digest, err := c.encode(e)
	if err != nil {
		return 0, fmt.Errorf("insert %s/%s: %w", c.typ, e.ID(), err)
	}

	res, err := c.q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, last_updated, payload, digest) VALUES (?, ?, ?, ?)`, c.table),
		e.ID(), entity.ToNanos(e.LastUpdated()), payload, digest,
	)
	if err != nil {
		return 0, fmt.Errorf("insert %s/%s: %w", c.typ, e.ID(), err)
	}

	key, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s/%s: last insert id: %w", c.typ, e.ID(), err)
	}
	return key, nil
}

// Update implements EntityStore. The row is addressed by local key so an
// update never creates a second row for the same id.
func (c *Collection[E]) Update(ctx context.Context, e E, localKey int64) error {
	payload, digest, err := c.encode(e)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", c.typ, e.ID(), err)
	}

	res, err := c.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET id = ?, last_updated = ?, payload = ?, digest = ? WHERE local_key = ?`, c.table),
		e.ID(), entity.ToNanos(e.LastUpdated()), payload, digest, localKey,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", c.typ, e.ID(), err)
	}
	return expectOneRow(res, fmt.Sprintf("update %s/%s at key %d", c.typ, e.ID(), localKey))
}

// Delete implements EntityStore.
func (c *Collection[E]) Delete(ctx context.Context, e E) error {
	res, err := c.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.table), e.ID())
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.typ, e.ID(), err)
	}
	return expectOneRow(res, fmt.Sprintf("delete %s/%s", c.typ, e.ID()))
}

// Count returns the number of rows in the collection.
func (c *Collection[E]) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.typ, err)
	}
	return n, nil
}

// Transact implements TxStore. Calling Transact on a collection that is
// already bound to a transaction reuses it.
func (c *Collection[E]) Transact(ctx context.Context, fn func(tx EntityStore[E]) error) error {
	if c.inTx {
		return fn(c)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s transaction: %w", c.typ, err)
	}
	defer tx.Rollback() // No-op if committed

	bound := *c
	bound.q = tx
	bound.inTx = true
	if err := fn(&bound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s transaction: %w", c.typ, err)
	}
	return nil
}

func (c *Collection[E]) encode(e E) ([]byte, string, error) {
	if e.ID() == "" {
		return nil, "", entity.ErrMissingID
	}
	if err := entity.CheckTimestamp(e.LastUpdated()); err != nil {
		return nil, "", err
	}
	payload, err := c.codec.Encode(e)
	if err != nil {
		return nil, "", err
	}
	digest, err := entity.Digest(payload)
	if err != nil {
		return nil, "", err
	}
	return payload, digest, nil
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
