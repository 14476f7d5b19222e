package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the Postgres store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS routerx_cache (
		namespace  TEXT        NOT NULL,
		key        TEXT        NOT NULL,
		value      TEXT        NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (namespace, key, value)
	)
`

// Postgres is a Store shared by every instance pointing at one database.
// Set-valued keys hold one row per member.
type Postgres struct {
	db        DB
	namespace string
	closeFn   func()
}

// NewPostgres creates a store on db. closeFn, if set, runs on Close.
func NewPostgres(db DB, namespace string, closeFn func()) *Postgres {
	if namespace == "" {
		namespace = Namespace
	}
	return &Postgres{db: db, namespace: namespace, closeFn: closeFn}
}

// Migrate creates the cache table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create routerx_cache: %w", err)
	}
	return nil
}

func (p *Postgres) Tables(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `
		SELECT value FROM routerx_cache
		WHERE namespace = $1 AND key = $2
		ORDER BY value
	`, p.namespace, KeyTables)
	if err != nil {
		return nil, fmt.Errorf("query cached tables: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan cached tables: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}

func (p *Postgres) SaveTables(ctx context.Context, names []string) error {
	return p.send(ctx, p.replaceBatch(KeyTables, normalize(names)...))
}

func (p *Postgres) Stamp(ctx context.Context) (Stamp, error) {
	rows, err := p.db.Query(ctx, `
		SELECT key, value FROM routerx_cache
		WHERE namespace = $1 AND key IN ($2, $3)
	`, p.namespace, KeyVersionName, KeyVersionCode)
	if err != nil {
		return Stamp{}, fmt.Errorf("query version stamp: %w", err)
	}
	defer rows.Close()

	var stamp Stamp
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Stamp{}, fmt.Errorf("scan version stamp: %w", err)
		}
		switch key {
		case KeyVersionName:
			stamp.Name = value
		case KeyVersionCode:
			code, err := strconv.Atoi(value)
			if err != nil {
				return Stamp{}, fmt.Errorf("parse %s: %w", KeyVersionCode, err)
			}
			stamp.Code = code
		}
	}
	if err := rows.Err(); err != nil {
		return Stamp{}, fmt.Errorf("read version stamp: %w", err)
	}
	return stamp, nil
}

func (p *Postgres) SaveStamp(ctx context.Context, stamp Stamp) error {
	b := p.replaceBatch(KeyVersionName, stamp.Name)
	appendReplace(b, p.namespace, KeyVersionCode, strconv.Itoa(stamp.Code))
	return p.send(ctx, b)
}

func (p *Postgres) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

// replaceBatch queues statements that replace every value under key. The
// batch runs in one implicit transaction.
func (p *Postgres) replaceBatch(key string, values ...string) *pgx.Batch {
	b := &pgx.Batch{}
	appendReplace(b, p.namespace, key, values...)
	return b
}

func appendReplace(b *pgx.Batch, namespace, key string, values ...string) {
	b.Queue(`DELETE FROM routerx_cache WHERE namespace = $1 AND key = $2`, namespace, key)
	for _, v := range values {
		b.Queue(`
			INSERT INTO routerx_cache (namespace, key, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (namespace, key, value) DO UPDATE SET updated_at = now()
		`, namespace, key, v)
	}
}

func (p *Postgres) send(ctx context.Context, b *pgx.Batch) error {
	results := p.db.SendBatch(ctx, b)
	defer results.Close()

	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("write cache batch: %w", err)
		}
	}
	return nil
}
