package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(context.Background(), bunDB))

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return bunDB, cleanup
}

func setupTestRepo(t *testing.T) (RepositoryManager, func()) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	return NewRepositoryManager(db), cleanup
}

func seedTestAccount(t *testing.T, repo RepositoryManager, mutate ...func(*Account)) *Account {
	t.Helper()

	hasher := NewPasswordHasher(fastArgonParams())
	hash, err := hasher.HashPassword("Sup3rSecret")
	require.NoError(t, err)

	account := &Account{
		ID:             uuid.New(),
		Email:          "pepe.rone@example.com",
		Username:       "pepe.rone",
		FullName:       "Pepe Rone",
		Role:           RoleMember,
		PasswordHash:   hash,
		EmailConfirmed: true,
	}

	for _, m := range mutate {
		m(account)
	}

	created, err := repo.Accounts().Register(context.Background(), account)
	require.NoError(t, err)

	return created
}

// seedTestAccountFields fills an in-memory account without touching storage.
func seedTestAccountFields(a *Account) {
	a.ID = uuid.New()
	a.Email = "pepe.rone@example.com"
	a.Username = "pepe.rone"
	a.Role = RoleMember
}

// fastArgonParams keeps hashing cheap in tests without changing behavior.
func fastArgonParams() Argon2Params {
	return Argon2Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func testConfig() Config {
	return Config{
		SigningKey:    "0123456789abcdef0123456789abcdef",
		Issuer:        "identity-test",
		Audience:      []string{"identity-test"},
		Password:      fastArgonParams(),
		AdminEmail:    "",
		AdminPassword: "",
	}.WithDefaults()
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
