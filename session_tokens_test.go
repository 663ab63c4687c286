package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionService(ttl time.Duration) *SessionTokenService {
	return NewSessionTokenService(
		[]byte("0123456789abcdef0123456789abcdef"),
		ttl,
		"identity-test",
		[]string{"identity-test"},
		nil,
	)
}

func TestGenerateAndValidateSessionToken(t *testing.T) {
	svc := testSessionService(time.Hour)

	account := &Account{}
	seedTestAccountFields(account)

	raw, err := svc.Generate(NewIdentityFromAccount(account))
	require.NoError(t, err)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, account.ID.String(), claims.UserID())
	assert.Equal(t, string(account.Role), claims.Role())
	assert.True(t, claims.IsAtLeast(RoleMember))
	assert.False(t, claims.IsAtLeast(RoleAdmin))
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expires(), 5*time.Second)
}

func TestValidateExpiredSessionToken(t *testing.T) {
	svc := testSessionService(time.Hour)
	svc.now = fixedClock(time.Now().Add(-2 * time.Hour))

	account := &Account{}
	seedTestAccountFields(account)

	raw, err := svc.Generate(NewIdentityFromAccount(account))
	require.NoError(t, err)

	_, err = testSessionService(time.Hour).Validate(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	svc := testSessionService(time.Hour)

	account := &Account{}
	seedTestAccountFields(account)

	raw, err := svc.Generate(NewIdentityFromAccount(account))
	require.NoError(t, err)

	other := NewSessionTokenService(
		[]byte("another-signing-key-another-key!"),
		time.Hour,
		"identity-test",
		[]string{"identity-test"},
		nil,
	)

	_, err = other.Validate(raw)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := testSessionService(time.Hour)

	_, err := svc.Validate("not.a.token")
	assert.Error(t, err)
}

func TestSessionFromAuthClaims(t *testing.T) {
	svc := testSessionService(time.Hour)

	account := &Account{}
	seedTestAccountFields(account)
	account.Role = RoleAdmin

	raw, err := svc.Generate(NewIdentityFromAccount(account))
	require.NoError(t, err)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)

	session, err := sessionFromAuthClaims(claims)
	require.NoError(t, err)

	assert.Equal(t, account.ID.String(), session.GetUserID())
	assert.Equal(t, "identity-test", session.GetIssuer())
	assert.True(t, session.IsAtLeast(RoleAdmin))

	id, err := session.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, account.ID, id)
}
