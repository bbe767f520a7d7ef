package pgstate

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestNamespace(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT metadata, managers, buckets FROM namespaces WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"metadata", "managers", "buckets"}).
			AddRow([]byte("meta"), []byte(`["alice","bob"]`), []byte(`[3,4]`)))

	ns, err := st.Namespace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ns.Managers)
	assert.Equal(t, []uint64{3, 4}, ns.Buckets)
	assert.Equal(t, []byte("meta"), ns.Metadata)

	mock.ExpectQuery(`SELECT metadata, managers, buckets FROM namespaces`).
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)
	_, err = st.Namespace(ctx, 2)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutNamespace(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)

	mock.ExpectExec(`INSERT INTO namespaces .* ON CONFLICT \(id\) DO UPDATE SET .*`).
		WithArgs(int64(1), sqlmock.AnyArg(), `["alice"]`, `[]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.PutNamespace(context.Background(), &ledger.Namespace{ID: 1, Managers: []string{"alice"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNamespace_NotFound(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)

	mock.ExpectExec(`DELETE FROM namespaces WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.DeleteNamespace(context.Background(), 5)
	assert.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBucket(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)

	mock.ExpectQuery(`SELECT namespace_id, metadata, writable, key_id, admins, contributors, tags\s+FROM buckets WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"namespace_id", "metadata", "writable", "key_id", "admins", "contributors", "tags"}).
			AddRow(int64(1), nil, true, int64(3), []byte(`["admin"]`), []byte(`[]`), []byte(`["chat"]`)))

	b, err := st.Bucket(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.NamespaceID)
	assert.Equal(t, ledger.WritableWithKey(3), b.Status)
	assert.Equal(t, []string{"admin"}, b.Admins)
	assert.Nil(t, b.Contributors)
	assert.True(t, b.HasTag("chat"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutBucket_DBError(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)

	mock.ExpectExec(`INSERT INTO buckets .* ON CONFLICT \(id\)`).
		WillReturnError(errors.New("conn reset"))

	err := st.PutBucket(context.Background(), &ledger.Bucket{ID: 1, NamespaceID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert bucket")
}

func TestDeleteBucket(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)

	mock.ExpectExec(`DELETE FROM messages WHERE bucket_id = \$1`).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM buckets WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.DeleteBucket(context.Background(), 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextIDs(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)
	ctx := context.Background()

	mock.ExpectQuery(`UPDATE chain SET last_bucket_id = last_bucket_id \+ 1 .* RETURNING last_bucket_id`).
		WillReturnRows(sqlmock.NewRows([]string{"last_bucket_id"}).AddRow(int64(4)))
	id, err := st.NextBucketID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), id)

	mock.ExpectQuery(`INSERT INTO message_counters .* ON CONFLICT \(bucket_id\) DO UPDATE .* RETURNING last_id`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow(int64(12)))
	id, err = st.NextMessageID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessages(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)

	mock.ExpectQuery(`SELECT message_id, reference, tag, metadata, contributor FROM messages\s+WHERE bucket_id = \$1 ORDER BY message_id`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "reference", "tag", "metadata", "contributor"}).
			AddRow(int64(1), []byte("r1"), ledger.KeySharingTag, nil, "admin").
			AddRow(int64(2), []byte("r2"), "", []byte(`{"unique":1}`), "writer"))

	msgs, err := st.Messages(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsKeySharing())
	assert.Equal(t, uint64(3), msgs[1].BucketID)
	assert.Equal(t, "writer", msgs[1].Contributor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMessage_NotFound(t *testing.T) {
	db, mock := newMock(t)
	st := NewState(db)

	mock.ExpectExec(`DELETE FROM messages WHERE bucket_id = \$1 AND message_id = \$2`).
		WithArgs(int64(1), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, st.DeleteMessage(context.Background(), 1, 9), common.ErrNotFound)
}

func TestInBlock_CommitsAndAdvancesHeight(t *testing.T) {
	db, mock := newMock(t)
	s := New(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO namespaces`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE chain SET height = height \+ 1 WHERE id = 1 RETURNING height`).
		WillReturnRows(sqlmock.NewRows([]string{"height"}).AddRow(int64(8)))
	mock.ExpectCommit()

	h, err := s.InBlock(context.Background(), func(ctx context.Context, st pallet.State) error {
		return st.PutNamespace(ctx, &ledger.Namespace{ID: 1, Managers: []string{"alice"}})
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), h)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInBlock_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	s := New(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.InBlock(context.Background(), func(context.Context, pallet.State) error {
		return errors.New("apply failed")
	})
	assert.EqualError(t, err, "apply failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHeight(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT height FROM chain WHERE id = 1`).
		WillReturnRows(sqlmock.NewRows([]string{"height"}).AddRow(int64(21)))

	h, err := New(db).Height(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(21), h)
}

func TestRunMigrations(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "migrations" {
			return errors.New("unexpected dir")
		}
		return nil
	}
	require.NoError(t, New(db).RunMigrations(context.Background()))

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.EqualError(t, New(db).RunMigrations(context.Background()), "boom")
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_ledger.sql", entries[0].Name())
}

func TestOpen_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectClose()

	orig := sqlOpen
	defer func() { sqlOpen = orig }()
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" {
			return nil, errors.New("unexpected driver")
		}
		return db, nil
	}

	_, err = Open(context.Background(), "postgres://example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db ping error")
	require.NoError(t, mock.ExpectationsWereMet())
}
