// Package postgres implements store.Store on PostgreSQL with pgx/v5.
//
// Schema changes are embedded goose migrations applied by [Migrate]. Every
// repository call runs under the store's query timeout so a slow database
// surfaces as an error instead of a hung request.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/postgres/migrations"
)

const defaultQueryTimeout = 5 * time.Second

// Postgres error codes mapped onto store errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// Store is a pgxpool-backed store.Store.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// New wraps an existing pool. A non-positive timeout selects the default.
func New(pool *pgxpool.Pool, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Store{pool: pool, timeout: queryTimeout}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded migrations through a database/sql handle
// borrowed from the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("postgres: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Users() store.Users                           { return users{s} }
func (s *Store) Roles() store.Roles                           { return roles{s} }
func (s *Store) RefreshTokens() store.RefreshTokens           { return refreshTokens{s} }
func (s *Store) VerificationTokens() store.VerificationTokens { return verifications{s} }
func (s *Store) Socials() store.Socials                       { return socials{s} }

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// mapErr translates driver errors into store errors. Malformed ids can never
// match a row, so they are reported as not found.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return store.ErrDuplicate
		case codeForeignKeyViolation, codeInvalidText:
			return store.ErrNotFound
		}
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

// limitOffset turns a page into SQL LIMIT/OFFSET arguments. A zero limit means
// no limit, which Postgres spells LIMIT NULL.
func limitOffset(page store.Page) (any, int) {
	var limit any
	if page.Limit > 0 {
		limit = page.Limit
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var _ store.Store = (*Store)(nil)
