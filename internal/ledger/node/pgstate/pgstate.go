// Package pgstate stores ledger state in PostgreSQL. Each block runs in one
// transaction; the schema is applied with embedded goose migrations.
package pgstate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/dmitrijs2005/bucketkeeper/internal/dbx"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the PostgreSQL ledger store.
type Store struct {
	db *sql.DB
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open connects to dsn with the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return New(db), nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, s.db, "migrations"); err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InBlock runs fn in a transaction and advances the chain height in the
// same transaction.
func (s *Store) InBlock(ctx context.Context, fn func(ctx context.Context, st pallet.State) error) (uint64, error) {
	var height uint64
	err := dbx.WithTx(ctx, s.db, dbx.BlockTxOptions, func(ctx context.Context, tx dbx.DBTX) error {
		if err := fn(ctx, &State{db: tx}); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `UPDATE chain SET height = height + 1 WHERE id = 1 RETURNING height`)
		if err := row.Scan(&height); err != nil {
			return fmt.Errorf("advance height: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return height, nil
}

func (s *Store) Bucket(ctx context.Context, id uint64) (*ledger.Bucket, error) {
	return (&State{db: s.db}).Bucket(ctx, id)
}

func (s *Store) Messages(ctx context.Context, bucketID uint64) ([]ledger.MessageEntry, error) {
	return (&State{db: s.db}).Messages(ctx, bucketID)
}

func (s *Store) Height(ctx context.Context) (uint64, error) {
	var h uint64
	if err := s.db.QueryRowContext(ctx, `SELECT height FROM chain WHERE id = 1`).Scan(&h); err != nil {
		return 0, fmt.Errorf("select height: %w", err)
	}
	return h, nil
}
