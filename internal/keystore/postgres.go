package keystore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Postgres is a Keystore backed by a Postgres table, for the directory
// server's persistent store of init keys (and any private keys this
// process itself holds, e.g. when the directory server is co-located
// with a member's own Session).
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an already-open *sql.DB. Schema setup (CREATE TABLE
// IF NOT EXISTS) is the caller's responsibility.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the init_keys and private_keys tables if they do
// not already exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS mls_init_keys (
			user_name  TEXT PRIMARY KEY,
			init_key   BYTEA NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("keystore: ensure init keys schema: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS mls_private_keys (
			public_key  BYTEA PRIMARY KEY,
			private_key BYTEA NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("keystore: ensure private keys schema: %w", err)
	}
	return nil
}

// RegisterKeypair implements Keystore.
func (p *Postgres) RegisterKeypair(public, private []byte) error {
	_, err := p.db.ExecContext(context.Background(), `
		INSERT INTO mls_private_keys (public_key, private_key)
		VALUES ($1, $2)
		ON CONFLICT (public_key) DO UPDATE SET private_key = EXCLUDED.private_key
	`, public, private)
	if err != nil {
		return fmt.Errorf("keystore: register keypair: %w", err)
	}
	return nil
}

// RegisterInitKey stores (or replaces) the init key a user publishes for
// others to Add them with.
func (p *Postgres) RegisterInitKey(ctx context.Context, userName string, initKey []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO mls_init_keys (user_name, init_key)
		VALUES ($1, $2)
		ON CONFLICT (user_name) DO UPDATE SET init_key = EXCLUDED.init_key, updated_at = NOW()
	`, userName, initKey)
	if err != nil {
		return fmt.Errorf("keystore: register init key: %w", err)
	}
	return nil
}

// FetchInitKey implements Keystore.
func (p *Postgres) FetchInitKey(userName string) ([]byte, error) {
	var initKey []byte
	err := p.db.QueryRowContext(context.Background(), `
		SELECT init_key FROM mls_init_keys WHERE user_name = $1
	`, userName).Scan(&initKey)
	if err == sql.ErrNoRows {
		return nil, ErrNoKeysAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: fetch init key: %w", err)
	}
	return initKey, nil
}

// GetPrivateKey implements Keystore.
func (p *Postgres) GetPrivateKey(public []byte) ([]byte, error) {
	var private []byte
	err := p.db.QueryRowContext(context.Background(), `
		SELECT private_key FROM mls_private_keys WHERE public_key = $1
	`, public).Scan(&private)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: get private key: %w", err)
	}
	return private, nil
}
