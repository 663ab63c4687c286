package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// EnsureAdminAccount creates the configured admin account if it does not
// exist yet. The seeded account is confirmed and carries the admin role.
// Safe to call on every startup; returns the account either way.
func EnsureAdminAccount(ctx context.Context, repo RepositoryManager, hasher *PasswordHasher, cfg Config) (*Account, error) {
	cfg = cfg.WithDefaults()

	if cfg.AdminEmail == "" {
		return nil, nil
	}

	if cfg.AdminPassword == "" {
		return nil, goerrors.New("admin seed requires a password", goerrors.CategoryBadInput)
	}

	if hasher == nil {
		hasher = NewPasswordHasher(cfg.Password)
	}

	var account *Account
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := repo.Accounts().GetByEmailTx(ctx, tx, cfg.AdminEmail)
		if err == nil {
			account = existing
			return nil
		}

		if !repository.IsRecordNotFound(err) {
			return err
		}

		hash, err := hasher.HashPassword(cfg.AdminPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash admin password")
		}

		account, err = repo.Accounts().RegisterTx(ctx, tx, &Account{
			Email:          cfg.AdminEmail,
			Role:           RoleAdmin,
			PasswordHash:   hash,
			EmailConfirmed: true,
		})
		return err
	})

	if err != nil {
		return nil, err
	}

	return account, nil
}
