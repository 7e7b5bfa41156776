package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/ratelimiter/internal/audit"
)

const rejectionsSchema = `
	CREATE TABLE IF NOT EXISTS rate_limit_rejections (
		id          BIGSERIAL PRIMARY KEY,
		identity    TEXT        NOT NULL,
		scope       TEXT        NOT NULL,
		hit_count   BIGINT      NOT NULL,
		hit_limit   BIGINT      NOT NULL,
		window_ms   BIGINT      NOT NULL,
		method      TEXT,
		path        TEXT,
		client_ip   TEXT,
		user_agent  TEXT,
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS rate_limit_rejections_identity_idx
		ON rate_limit_rejections (identity, occurred_at);
`

// PostgresRejectionStore is a PostgreSQL implementation of audit.Store.
type PostgresRejectionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRejectionStore creates a new PostgreSQL-backed rejection store.
func NewPostgresRejectionStore(pool *pgxpool.Pool) *PostgresRejectionStore {
	return &PostgresRejectionStore{pool: pool}
}

// EnsureSchema creates the rejections table if it does not exist.
func (p *PostgresRejectionStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, rejectionsSchema)

	return err
}

func (p *PostgresRejectionStore) SaveLimitExceeded(ctx context.Context, event *audit.LimitExceededEvent) error {
	query := `
		INSERT INTO rate_limit_rejections
			(identity, scope, hit_count, hit_limit, window_ms, method, path, client_ip, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := p.pool.Exec(ctx, query,
		event.Identity,
		event.Scope,
		event.Count,
		event.Limit,
		event.WindowMs,
		nullableString(event.Method),
		nullableString(event.Path),
		nullableString(event.ClientIP),
		nullableString(event.UserAgent),
		event.OccurredAt,
	)

	return err
}

// CountByIdentity returns how many rejections were recorded for identity.
func (p *PostgresRejectionStore) CountByIdentity(ctx context.Context, identity string) (int64, error) {
	var count int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rate_limit_rejections WHERE identity = $1`, identity,
	).Scan(&count)

	return count, err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
