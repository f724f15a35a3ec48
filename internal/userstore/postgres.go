package userstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool is the part of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Postgres stores accounts in the oauth_users table.
type Postgres struct {
	pool       pgxPool
	bcryptCost int
}

var _ auth.UserStore = (*Postgres)(nil)

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, bcryptCost int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("userstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("userstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("userstore: ping: %w", err)
	}
	return newPostgres(pool, bcryptCost), nil
}

func newPostgres(pool pgxPool, bcryptCost int) *Postgres {
	return &Postgres{pool: pool, bcryptCost: bcryptCost}
}

const schema = `
CREATE TABLE IF NOT EXISTS oauth_users (
	id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	email         text NOT NULL UNIQUE,
	name          text NOT NULL DEFAULT '',
	role          text NOT NULL,
	password_hash text NOT NULL,
	created_at    timestamptz NOT NULL DEFAULT now()
);`

// EnsureSchema creates the table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("userstore: ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	const q = `
SELECT id::text, email, name, role
FROM oauth_users
WHERE email = $1;
`
	var a auth.Account
	err := p.pool.QueryRow(ctx, q, normalizeEmail(email)).Scan(&a.ID, &a.Email, &a.Name, &a.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userstore: find by email: %w", err)
	}
	return &a, nil
}

func (p *Postgres) Create(ctx context.Context, in auth.NewAccount) (*auth.Account, error) {
	if !IsSystem(ctx) {
		return nil, ErrSystemContextRequired
	}
	hash, err := hashPassword(in.Password, p.bcryptCost)
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO oauth_users (email, name, role, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING id::text, email, name, role;
`
	var a auth.Account
	err = p.pool.QueryRow(ctx, q, normalizeEmail(in.Email), in.Name, in.Role, hash).
		Scan(&a.ID, &a.Email, &a.Name, &a.Role)
	if err != nil {
		return nil, mapInsertError(err)
	}
	return &a, nil
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return auth.ErrAccountExists
	}
	return fmt.Errorf("userstore: create: %w", err)
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() { p.pool.Close() }
