// Package postgres implements session.Storage on a PostgreSQL table.
//
// The table is created by the embedded goose migration (see Migrate). When the
// context carries a transaction set with pg.WithTx, queries run inside it.
package postgres

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sessions/core/session"
	"github.com/dmitrymomot/sessions/integration/database/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	selectQuery = `SELECT data, expires_at FROM sessions WHERE id = $1`
	upsertQuery = `INSERT INTO sessions (id, data, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`
	deleteQuery        = `DELETE FROM sessions WHERE id = $1`
	deleteExpiredQuery = `DELETE FROM sessions WHERE id = $1 AND expires_at <= $2`
	sweepQuery         = `DELETE FROM sessions WHERE expires_at <= $1`
	resetQuery         = `DELETE FROM sessions`
)

// DB is the subset of pgx used by Storage. *pgxpool.Pool, *pgx.Conn and
// pgx.Tx satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage is a PostgreSQL-backed session.Storage.
// The connection pool is owned by the caller; Close does not close it.
type Storage struct {
	db DB
}

var (
	_ session.Storage        = (*Storage)(nil)
	_ session.ExpiredCleaner = (*Storage)(nil)
)

// New creates a storage on db.
func New(db DB) *Storage {
	return &Storage{db: db}
}

// MigrationsTable is the goose version table of the sessions schema. It is
// separate from the application's table so their version numbers never collide.
const MigrationsTable = "session_schema_migrations"

// Migrate creates the sessions table using the embedded migrations.
// cfg.MigrationsTable is ignored in favor of MigrationsTable.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return errors.Join(pg.ErrFailedToApplyMigrations, err)
	}
	return pg.Migrate(ctx, pool, sub, migrationConfig(cfg), log)
}

func migrationConfig(cfg pg.Config) pg.Config {
	cfg.MigrationsTable = MigrationsTable
	cfg.MigrationsPath = ""
	return cfg
}

func (s *Storage) conn(ctx context.Context) DB {
	if tx, ok := pg.TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// Get returns the stored data, or nil when absent. Expired rows are deleted.
func (s *Storage) Get(ctx context.Context, id string) (session.Data, error) {
	db := s.conn(ctx)

	var (
		raw       []byte
		expiresAt time.Time
	)
	if err := db.QueryRow(ctx, selectQuery, id).Scan(&raw, &expiresAt); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, errors.Join(session.ErrStorage, err)
	}

	now := time.Now()
	rec := session.Record{ExpiresAt: expiresAt}
	if rec.IsExpired(now) {
		// The expiry condition keeps a concurrently refreshed row.
		if _, err := db.Exec(ctx, deleteExpiredQuery, id, now); err != nil {
			return nil, errors.Join(session.ErrStorage, err)
		}
		return nil, nil
	}

	data, err := session.DecodeData(raw)
	if err != nil {
		return nil, errors.Join(session.ErrStorage, err)
	}
	if data == nil {
		data = session.Data{}
	}
	return data, nil
}

// Set upserts the row for id with expiry now+ttl.
func (s *Storage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	raw, err := session.EncodeData(data)
	if err != nil {
		return err
	}
	rec := session.NewRecord(nil, ttl)
	if _, err := s.conn(ctx).Exec(ctx, upsertQuery, id, raw, rec.ExpiresAt); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Remove deletes the row for id.
func (s *Storage) Remove(ctx context.Context, id string) error {
	if _, err := s.conn(ctx).Exec(ctx, deleteQuery, id); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// Reset deletes every session row.
func (s *Storage) Reset(ctx context.Context) error {
	if _, err := s.conn(ctx).Exec(ctx, resetQuery); err != nil {
		return errors.Join(session.ErrStorage, err)
	}
	return nil
}

// DeleteExpired removes rows whose expiry has passed.
func (s *Storage) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, sweepQuery, time.Now())
	if err != nil {
		return 0, errors.Join(session.ErrStorage, err)
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *Storage) Close(context.Context) error {
	return nil
}
