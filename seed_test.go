package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// harness already ran them once; running again must be a no-op
	require.NoError(t, RunMigrations(context.Background(), db))
	require.NoError(t, RunMigrations(context.Background(), db))
}

func TestEnsureAdminAccountSeedsOnce(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	cfg := testConfig()
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminPassword = "Sup3rSecret"

	ctx := context.Background()

	first, err := EnsureAdminAccount(ctx, repo, nil, cfg)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, RoleAdmin, first.Role)
	assert.True(t, first.EmailConfirmed)

	second, err := EnsureAdminAccount(ctx, repo, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	page, err := repo.Accounts().ListPage(ctx, ListAccountsOptions{})
	require.NoError(t, err)
	assert.Len(t, page.Accounts, 1)
}

func TestEnsureAdminAccountSkipsWithoutConfig(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	account, err := EnsureAdminAccount(context.Background(), repo, nil, testConfig())
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestEnsureAdminAccountRequiresPassword(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	cfg := testConfig()
	cfg.AdminEmail = "admin@example.com"

	_, err := EnsureAdminAccount(context.Background(), repo, nil, cfg)
	assert.Error(t, err)
}

func TestSeededAdminCanLogIn(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	cfg := testConfig()
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminPassword = "Sup3rSecret"

	_, err := EnsureAdminAccount(context.Background(), repo, nil, cfg)
	require.NoError(t, err)

	auther := NewAuthenticator(repo, cfg)
	token, err := auther.Login(context.Background(), "admin@example.com", "Sup3rSecret")
	require.NoError(t, err)

	session, err := auther.SessionFromToken(token)
	require.NoError(t, err)

	_, err = auther.ListAccounts(context.Background(), session, ListAccountsOptions{})
	assert.NoError(t, err)
}
