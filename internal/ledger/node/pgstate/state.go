package pgstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/dbx"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
)

// State implements pallet.State over a dbx.DBTX (*sql.DB or *sql.Tx).
type State struct {
	db dbx.DBTX
}

func NewState(db dbx.DBTX) *State {
	return &State{db: db}
}

func encodeList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeList[T any](b []byte) ([]T, error) {
	var v []T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}

func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *State) Namespace(ctx context.Context, id uint64) (*ledger.Namespace, error) {
	query := `SELECT metadata, managers, buckets FROM namespaces WHERE id = $1`

	ns := &ledger.Namespace{ID: id}
	var managers, buckets []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&ns.Metadata, &managers, &buckets)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select namespace: %w", err)
	}
	if ns.Managers, err = decodeList[string](managers); err != nil {
		return nil, fmt.Errorf("decode managers: %w", err)
	}
	if ns.Buckets, err = decodeList[uint64](buckets); err != nil {
		return nil, fmt.Errorf("decode buckets: %w", err)
	}
	return ns, nil
}

func (s *State) PutNamespace(ctx context.Context, ns *ledger.Namespace) error {
	managers, err := encodeList(ns.Managers)
	if err != nil {
		return err
	}
	buckets, err := encodeList(ns.Buckets)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO namespaces (id, metadata, managers, buckets)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET metadata = EXCLUDED.metadata, managers = EXCLUDED.managers, buckets = EXCLUDED.buckets
	`
	if _, err := s.db.ExecContext(ctx, query, ns.ID, ns.Metadata, managers, buckets); err != nil {
		return fmt.Errorf("upsert namespace: %w", err)
	}
	return nil
}

func (s *State) DeleteNamespace(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM namespaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}
	return rowsAffected(res)
}

func (s *State) Bucket(ctx context.Context, id uint64) (*ledger.Bucket, error) {
	query := `
		SELECT namespace_id, metadata, writable, key_id, admins, contributors, tags
		FROM buckets WHERE id = $1
	`
	b := &ledger.Bucket{ID: id}
	var admins, contributors, tags []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&b.NamespaceID, &b.Metadata, &b.Status.Writable, &b.Status.KeyID, &admins, &contributors, &tags,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select bucket: %w", err)
	}
	if b.Admins, err = decodeList[string](admins); err != nil {
		return nil, fmt.Errorf("decode admins: %w", err)
	}
	if b.Contributors, err = decodeList[string](contributors); err != nil {
		return nil, fmt.Errorf("decode contributors: %w", err)
	}
	if b.Tags, err = decodeList[string](tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return b, nil
}

func (s *State) PutBucket(ctx context.Context, b *ledger.Bucket) error {
	admins, err := encodeList(b.Admins)
	if err != nil {
		return err
	}
	contributors, err := encodeList(b.Contributors)
	if err != nil {
		return err
	}
	tags, err := encodeList(b.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO buckets (id, namespace_id, metadata, writable, key_id, admins, contributors, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			metadata = EXCLUDED.metadata,
			writable = EXCLUDED.writable,
			key_id = EXCLUDED.key_id,
			admins = EXCLUDED.admins,
			contributors = EXCLUDED.contributors,
			tags = EXCLUDED.tags
	`
	_, err = s.db.ExecContext(ctx, query,
		b.ID, b.NamespaceID, b.Metadata, b.Status.Writable, b.Status.KeyID, admins, contributors, tags)
	if err != nil {
		return fmt.Errorf("upsert bucket: %w", err)
	}
	return nil
}

// DeleteBucket removes the bucket and its messages. The message counter is
// kept so ids are never reused.
func (s *State) DeleteBucket(ctx context.Context, id uint64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE bucket_id = $1`, id); err != nil {
		return fmt.Errorf("delete bucket messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}
	return rowsAffected(res)
}

func (s *State) NextBucketID(ctx context.Context) (uint64, error) {
	var id uint64
	row := s.db.QueryRowContext(ctx, `UPDATE chain SET last_bucket_id = last_bucket_id + 1 WHERE id = 1 RETURNING last_bucket_id`)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("next bucket id: %w", err)
	}
	return id, nil
}

func (s *State) Message(ctx context.Context, bucketID, messageID uint64) (*ledger.MessageEntry, error) {
	query := `
		SELECT reference, tag, metadata, contributor FROM messages
		WHERE bucket_id = $1 AND message_id = $2
	`
	m := &ledger.MessageEntry{BucketID: bucketID, MessageID: messageID}
	err := s.db.QueryRowContext(ctx, query, bucketID, messageID).Scan(&m.Reference, &m.Tag, &m.Metadata, &m.Contributor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}
	return m, nil
}

func (s *State) PutMessage(ctx context.Context, m *ledger.MessageEntry) error {
	query := `
		INSERT INTO messages (bucket_id, message_id, reference, tag, metadata, contributor)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, m.BucketID, m.MessageID, m.Reference, m.Tag, m.Metadata, m.Contributor)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *State) DeleteMessage(ctx context.Context, bucketID, messageID uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE bucket_id = $1 AND message_id = $2`, bucketID, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return rowsAffected(res)
}

func (s *State) NextMessageID(ctx context.Context, bucketID uint64) (uint64, error) {
	query := `
		INSERT INTO message_counters (bucket_id, last_id) VALUES ($1, 1)
		ON CONFLICT (bucket_id) DO UPDATE SET last_id = message_counters.last_id + 1
		RETURNING last_id
	`
	var id uint64
	if err := s.db.QueryRowContext(ctx, query, bucketID).Scan(&id); err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	return id, nil
}

// Messages lists the messages of a bucket in ascending id order.
func (s *State) Messages(ctx context.Context, bucketID uint64) ([]ledger.MessageEntry, error) {
	query := `
		SELECT message_id, reference, tag, metadata, contributor FROM messages
		WHERE bucket_id = $1 ORDER BY message_id
	`
	rows, err := s.db.QueryContext(ctx, query, bucketID)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []ledger.MessageEntry
	for rows.Next() {
		m := ledger.MessageEntry{BucketID: bucketID}
		if err := rows.Scan(&m.MessageID, &m.Reference, &m.Tag, &m.Metadata, &m.Contributor); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
