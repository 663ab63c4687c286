package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordProducesArgon2id(t *testing.T) {
	hasher := NewPasswordHasher(fastArgonParams())

	hash, err := hasher.HashPassword("Sup3rSecret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	again, err := hasher.HashPassword("Sup3rSecret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salt should make hashes unique")
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	hasher := NewPasswordHasher(fastArgonParams())

	_, err := hasher.HashPassword("")
	assert.ErrorIs(t, err, ErrNoEmptyString)
}

func TestComparePasswordAndHash(t *testing.T) {
	hasher := NewPasswordHasher(fastArgonParams())

	hash, err := hasher.HashPassword("Sup3rSecret")
	require.NoError(t, err)

	assert.NoError(t, hasher.ComparePasswordAndHash("Sup3rSecret", hash))
	assert.ErrorIs(t, hasher.ComparePasswordAndHash("wrong", hash), ErrMismatchedHashAndPassword)
	assert.ErrorIs(t, hasher.ComparePasswordAndHash("Sup3rSecret", "not-a-hash"), ErrMismatchedHashAndPassword)
}

func TestCompareLegacyBcryptHash(t *testing.T) {
	hasher := NewPasswordHasher(fastArgonParams())

	legacy, err := bcrypt.GenerateFromPassword([]byte("Sup3rSecret"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.NoError(t, hasher.ComparePasswordAndHash("Sup3rSecret", string(legacy)))
	assert.ErrorIs(t, hasher.ComparePasswordAndHash("wrong", string(legacy)), ErrMismatchedHashAndPassword)
}

func TestNeedsRehash(t *testing.T) {
	hasher := NewPasswordHasher(fastArgonParams())

	current, err := hasher.HashPassword("Sup3rSecret")
	require.NoError(t, err)
	assert.False(t, hasher.NeedsRehash(current))

	legacy, err := bcrypt.GenerateFromPassword([]byte("Sup3rSecret"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, hasher.NeedsRehash(string(legacy)))

	stale := NewPasswordHasher(Argon2Params{
		Memory:      4 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	staleHash, err := stale.HashPassword("Sup3rSecret")
	require.NoError(t, err)
	assert.True(t, hasher.NeedsRehash(staleHash))
}

func TestRandomPasswordHash(t *testing.T) {
	hasher := NewPasswordHasher(fastArgonParams())

	a := hasher.RandomPasswordHash()
	b := hasher.RandomPasswordHash()

	assert.True(t, strings.HasPrefix(a, "$argon2id$"))
	assert.NotEqual(t, a, b)
}

func TestFallbackDecoyHashIsComparable(t *testing.T) {
	// the fallback must stay decodable so a comparison against it still
	// burns a real argon2 derivation
	_, salt, key, err := decodeArgon2Hash(fallbackDecoyHash)
	require.NoError(t, err)
	assert.Len(t, salt, 16)
	assert.Len(t, key, 32)

	hasher := NewPasswordHasher(fastArgonParams())
	assert.ErrorIs(t, hasher.ComparePasswordAndHash("Sup3rSecret", fallbackDecoyHash), ErrMismatchedHashAndPassword)
}
