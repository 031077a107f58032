package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/replica/internal/entity"
)

func TestOpenCollection_RejectsInvalidType(t *testing.T) {
	s := createTestStore(t)
	_, err := OpenCollection(context.Background(), s, "users; DROP TABLE x", entity.JSONCodec[entity.Record]{})
	assert.Error(t, err)
}

func TestOpenCollection_RegistersType(t *testing.T) {
	s, _ := createTestCollection(t, "users")
	ctx := context.Background()

	// Reopening is a no-op.
	_, err := OpenCollection(ctx, s, "users", entity.JSONCodec[entity.Record]{})
	require.NoError(t, err)
	_, err = OpenCollection(ctx, s, "programs", entity.JSONCodec[entity.Record]{})
	require.NoError(t, err)

	types, err := s.ListTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []entity.Type{"programs", "users"}, types)

	indexes := getTableIndexes(t, s.db, TableName("users"))
	assert.Contains(t, indexes, "sqlite_autoindex_entity_users_1", "id must be UNIQUE")
}

func TestCollection_InsertGet(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	key, err := c.Insert(ctx, createTestRecord("u1", 1))
	require.NoError(t, err)
	assert.Positive(t, key)

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, key, got.LocalKey)
	assert.Equal(t, "u1", got.ID())
	assert.True(t, got.LastUpdated().Equal(testEpoch.Add(time.Hour)))
	assert.Equal(t, "u1", got.Entity.Fields["name"])
}

func TestCollection_GetMissing(t *testing.T) {
	_, c := createTestCollection(t, "users")
	_, err := c.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCollection_InsertDuplicateIDFails(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	_, err := c.Insert(ctx, createTestRecord("u1", 1))
	require.NoError(t, err)
	_, err = c.Insert(ctx, createTestRecord("u1", 2))
	assert.Error(t, err)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollection_UpdateByLocalKey(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	key, err := c.Insert(ctx, createTestRecord("u1", 1))
	require.NoError(t, err)

	updated := entity.NewRecord("u1", testEpoch.Add(48*time.Hour), map[string]any{"name": "renamed"})
	require.NoError(t, c.Update(ctx, updated, key))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, key, got.LocalKey, "update keeps the row")
	assert.Equal(t, "renamed", got.Entity.Fields["name"])

	err = c.Update(ctx, updated, key+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_Delete(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	rec := createTestRecord("u1", 1)
	_, err := c.Insert(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, rec))
	_, err = c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, c.Delete(ctx, rec), ErrNotFound)
}

func TestCollection_QueryAllOrderedByLocalKey(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := c.Insert(ctx, createTestRecord(id, 1))
		require.NoError(t, err)
	}

	all, err := c.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID())
	assert.Equal(t, "a", all[1].ID())
	assert.Equal(t, "b", all[2].ID())
	assert.Less(t, all[0].LocalKey, all[1].LocalKey)
}

func TestCollection_QueryAllEmpty(t *testing.T) {
	_, c := createTestCollection(t, "users")
	all, err := c.QueryAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestCollection_TransactCommits(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	err := c.Transact(ctx, func(tx EntityStore[entity.Record]) error {
		if _, err := tx.Insert(ctx, createTestRecord("a", 1)); err != nil {
			return err
		}
		_, err := tx.Insert(ctx, createTestRecord("b", 1))
		return err
	})
	require.NoError(t, err)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollection_TransactRollsBackOnError(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()
	boom := errors.New("boom")

	err := c.Transact(ctx, func(tx EntityStore[entity.Record]) error {
		if _, err := tx.Insert(ctx, createTestRecord("a", 1)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollection_FailedStatementDoesNotAbortTransaction(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	_, err := c.Insert(ctx, createTestRecord("dup", 1))
	require.NoError(t, err)

	var dupErr error
	err = c.Transact(ctx, func(tx EntityStore[entity.Record]) error {
		_, dupErr = tx.Insert(ctx, createTestRecord("dup", 2))
		_, err := tx.Insert(ctx, createTestRecord("fresh", 1))
		return err
	})
	require.NoError(t, err)
	assert.Error(t, dupErr)

	all, err := c.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "fresh", all[1].ID())
}

func TestCollection_NestedTransactReusesTransaction(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	err := c.Transact(ctx, func(tx EntityStore[entity.Record]) error {
		inner, ok := tx.(TxStore[entity.Record])
		require.True(t, ok)
		return inner.Transact(ctx, func(tx2 EntityStore[entity.Record]) error {
			_, err := tx2.Insert(ctx, createTestRecord("a", 1))
			return err
		})
	})
	require.NoError(t, err)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollection_StoresCanonicalDigest(t *testing.T) {
	s, c := createTestCollection(t, "users")
	ctx := context.Background()

	rec := createTestRecord("u1", 1)
	_, err := c.Insert(ctx, rec)
	require.NoError(t, err)

	payload, err := entity.JSONCodec[entity.Record]{}.Encode(rec)
	require.NoError(t, err)
	want, err := entity.Digest(payload)
	require.NoError(t, err)

	var digest string
	require.NoError(t, s.db.QueryRow(`SELECT digest FROM entity_users WHERE id = 'u1'`).Scan(&digest))
	assert.Equal(t, want, digest)
}

func TestCountRows(t *testing.T) {
	s, c := createTestCollection(t, "users")
	ctx := context.Background()

	_, err := c.Insert(ctx, createTestRecord("u1", 1))
	require.NoError(t, err)

	n, err := s.CountRows(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountRows(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStats(t *testing.T) {
	s, c := createTestCollection(t, "users")
	ctx := context.Background()

	empty, err := s.Stats(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, CollectionStats{}, empty)

	_, err = c.Insert(ctx, createTestRecord("u1", 3))
	require.NoError(t, err)
	_, err = c.Insert(ctx, createTestRecord("u2", 1))
	require.NoError(t, err)

	st, err := s.Stats(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Rows)
	assert.True(t, st.Newest.Equal(testEpoch.Add(3*time.Hour)))
	assert.Len(t, st.Fingerprint, 64)

	unknown, err := s.Stats(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, CollectionStats{}, unknown)
}

func TestStats_FingerprintIgnoresInsertOrder(t *testing.T) {
	ctx := context.Background()
	s1, c1 := createTestCollection(t, "users")
	s2, c2 := createTestCollection(t, "users")

	for _, id := range []string{"a", "b", "c"} {
		_, err := c1.Insert(ctx, createTestRecord(id, 1))
		require.NoError(t, err)
	}
	for _, id := range []string{"c", "a", "b"} {
		_, err := c2.Insert(ctx, createTestRecord(id, 1))
		require.NoError(t, err)
	}

	st1, err := s1.Stats(ctx, "users")
	require.NoError(t, err)
	st2, err := s2.Stats(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, st1.Fingerprint, st2.Fingerprint)

	got, err := c2.Get(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, c2.Update(ctx, createTestRecord("b", 2), got.LocalKey))

	st2, err = s2.Stats(ctx, "users")
	require.NoError(t, err)
	assert.NotEqual(t, st1.Fingerprint, st2.Fingerprint)
	assert.True(t, st2.Newest.Equal(testEpoch.Add(2*time.Hour)))
}

func TestCollection_RejectsOutOfRangeTimestamp(t *testing.T) {
	_, c := createTestCollection(t, "users")
	ctx := context.Background()

	far := entity.NewRecord("u1", time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	_, err := c.Insert(ctx, far)
	assert.ErrorIs(t, err, entity.ErrTimestampRange)

	_, err = c.Insert(ctx, createTestRecord("u2", 1))
	require.NoError(t, err)
	got, err := c.Get(ctx, "u2")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Update(ctx, entity.NewRecord("u2", far.LastUpdated(), nil), got.LocalKey), entity.ErrTimestampRange)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
