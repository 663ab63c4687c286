package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

var createAccountsTableSQL = `CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	user_role VARCHAR NOT NULL DEFAULT 'guest',
	username VARCHAR NOT NULL UNIQUE,
	full_name VARCHAR,
	email VARCHAR NOT NULL UNIQUE,
	phone_number VARCHAR,
	password_hash VARCHAR,
	is_email_confirmed BOOLEAN DEFAULT FALSE,
	failed_access_count INTEGER DEFAULT 0,
	lockout_end_at TIMESTAMP,
	lockout_count INTEGER DEFAULT 0,
	version BIGINT NOT NULL DEFAULT 0,
	last_login_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	deleted_at TIMESTAMP
);`

var createTokensTableSQL = `CREATE TABLE IF NOT EXISTS tokens (
	id UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts (id),
	purpose VARCHAR NOT NULL,
	value VARCHAR NOT NULL UNIQUE,
	issued_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	expires_at TIMESTAMP NOT NULL,
	consumed_at TIMESTAMP
);`

var migrationIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts (email);`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_created_at ON accounts (created_at, id);`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_value ON tokens (value);`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_account_purpose ON tokens (account_id, purpose);`,
}

// RunMigrations creates the schema. Every statement is idempotent so it is
// safe to run on every startup regardless of environment.
func RunMigrations(ctx context.Context, db *bun.DB) error {
	stmts := append([]string{
		createAccountsTableSQL,
		createTokensTableSQL,
	}, migrationIndexes...)

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "migration failed")
		}
	}

	return nil
}
