package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAppliesDefaults(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()

	account, err := repo.Accounts().Register(ctx, &Account{
		Email:        "Pepe.Rone@Example.COM",
		PasswordHash: "$argon2id$fake",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, account.ID)
	assert.Equal(t, "pepe.rone@example.com", account.Email)
	assert.Equal(t, "pepe.rone", account.Username)
	assert.Equal(t, RoleGuest, account.Role)
	assert.False(t, account.EmailConfirmed)
}

func TestRegisterDuplicateEmailIsCaseInsensitive(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()

	_, err := repo.Accounts().Register(ctx, &Account{
		Email:        "pepe.rone@example.com",
		PasswordHash: "$argon2id$fake",
	})
	require.NoError(t, err)

	_, err = repo.Accounts().Register(ctx, &Account{
		Email:        "PEPE.RONE@example.com",
		Username:     "different",
		PasswordHash: "$argon2id$fake",
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestGetByEmailIsCaseInsensitive(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	seeded := seedTestAccount(t, repo)

	found, err := repo.Accounts().GetByEmail(context.Background(), "PEPE.RONE@Example.com")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)
}

func TestTrackFailedAccessIncrements(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	seeded := seedTestAccount(t, repo)

	for i := 1; i <= 3; i++ {
		account, err := repo.Accounts().TrackFailedAccess(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, i, account.FailedAccessCount)
	}
}

func TestLockAndTrackSuccessfulAccess(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	seeded := seedTestAccount(t, repo)

	until := time.Now().Add(15 * time.Minute)
	locked, err := repo.Accounts().Lock(ctx, seeded.ID, until)
	require.NoError(t, err)
	require.NotNil(t, locked.LockoutEndAt)
	assert.Equal(t, 1, locked.LockoutCount)
	assert.Equal(t, 0, locked.FailedAccessCount)

	require.NoError(t, repo.Accounts().TrackSuccessfulAccess(ctx, seeded.ID))

	account, err := repo.Accounts().GetByID(ctx, seeded.ID.String())
	require.NoError(t, err)
	assert.Nil(t, account.LockoutEndAt)
	assert.Equal(t, 0, account.FailedAccessCount)
	assert.NotNil(t, account.LastLoginAt)
}

func TestSetPasswordVersionConflict(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	seeded := seedTestAccount(t, repo)

	require.NoError(t, repo.Accounts().SetPassword(ctx, seeded.ID, "$argon2id$new", seeded.Version))

	// stale version loses
	err := repo.Accounts().SetPassword(ctx, seeded.ID, "$argon2id$other", seeded.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	account, err := repo.Accounts().GetByID(ctx, seeded.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "$argon2id$new", account.PasswordHash)
	assert.Equal(t, seeded.Version+1, account.Version)
}

func TestResetPasswordConfirmsAndUnlocks(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	seeded := seedTestAccount(t, repo, func(a *Account) {
		a.EmailConfirmed = false
	})

	_, err := repo.Accounts().Lock(ctx, seeded.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.Accounts().ResetPassword(ctx, seeded.ID, "$argon2id$reset"))

	account, err := repo.Accounts().GetByID(ctx, seeded.ID.String())
	require.NoError(t, err)
	assert.True(t, account.EmailConfirmed)
	assert.Nil(t, account.LockoutEndAt)
	assert.Equal(t, 0, account.FailedAccessCount)
	assert.Equal(t, "$argon2id$reset", account.PasswordHash)
}

func TestListAccountsPaginates(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Accounts().Register(ctx, &Account{
			Email:        uuid.NewString() + "@example.com",
			Username:     uuid.NewString(),
			PasswordHash: "$argon2id$fake",
		})
		require.NoError(t, err)
	}

	seen := map[string]bool{}

	page, err := repo.Accounts().ListPage(ctx, ListAccountsOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Accounts, 2)
	require.NotEmpty(t, page.NextPageToken)
	for _, a := range page.Accounts {
		seen[a.ID.String()] = true
	}

	for page.NextPageToken != "" {
		page, err = repo.Accounts().ListPage(ctx, ListAccountsOptions{Limit: 2, PageToken: page.NextPageToken})
		require.NoError(t, err)
		for _, a := range page.Accounts {
			require.False(t, seen[a.ID.String()], "account repeated across pages")
			seen[a.ID.String()] = true
		}
	}

	assert.Len(t, seen, 5)
}

func TestListAccountsRejectsMalformedToken(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	_, err := repo.Accounts().ListPage(context.Background(), ListAccountsOptions{PageToken: "???"})
	assert.Error(t, err)
}
