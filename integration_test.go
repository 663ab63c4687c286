package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Full journey: register, get blocked while unconfirmed, confirm, log in,
// then recover the account through a password reset.
func TestAccountLifecycle(t *testing.T) {
	auther, _, cleanup := setupAuther(t)
	defer cleanup()

	mailer := &capturingMailer{}
	sink := &capturingSink{}
	auther.WithMailer(mailer).WithActivitySink(sink)

	ctx := context.Background()

	reg, err := auther.Register(ctx, RegisterUserMessage{
		FullName: "Pepe Rone",
		Email:    "pepe.rone@example.com",
		Password: "Sup3rSecret",
	})
	require.NoError(t, err)

	_, err = auther.Login(ctx, "pepe.rone@example.com", "Sup3rSecret")
	require.ErrorIs(t, err, ErrEmailUnconfirmed)

	_, err = auther.ConfirmEmail(ctx, reg.ConfirmationToken.Value)
	require.NoError(t, err)

	token, err := auther.Login(ctx, "pepe.rone@example.com", "Sup3rSecret")
	require.NoError(t, err)

	session, err := auther.SessionFromToken(token)
	require.NoError(t, err)

	identity, err := auther.IdentityFromSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "pepe.rone@example.com", identity.Email())

	// forgot the password
	reset, err := auther.RequestPasswordReset(ctx, "pepe.rone@example.com")
	require.NoError(t, err)
	require.NotNil(t, reset.ResetToken)

	_, err = auther.ResetPassword(ctx, reset.ResetToken.Value, "Fr3shSecret")
	require.NoError(t, err)

	_, err = auther.Login(ctx, "pepe.rone@example.com", "Fr3shSecret")
	require.NoError(t, err)

	assert.NotEmpty(t, sink.byType(ActivityEventRegistration))
	assert.NotEmpty(t, sink.byType(ActivityEventEmailConfirmed))
	assert.NotEmpty(t, sink.byType(ActivityEventLoginSuccess))
	assert.NotEmpty(t, sink.byType(ActivityEventPasswordResetSuccess))
	assert.Len(t, mailer.sent(), 2, "one confirmation, one reset")
}

// Lockout journey: hammer the account until it locks, then recover with a
// reset, which clears the lockout.
func TestLockoutRecoveryViaReset(t *testing.T) {
	auther, repo, cleanup := setupAuther(t)
	defer cleanup()

	sink := &capturingSink{}
	auther.WithActivitySink(sink)

	account := seedTestAccount(t, repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := auther.Login(ctx, account.Email, "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := auther.Login(ctx, account.Email, "Sup3rSecret")
	require.ErrorIs(t, err, ErrAccountLocked)
	require.Len(t, sink.byType(ActivityEventAccountLocked), 1)

	reset, err := auther.RequestPasswordReset(ctx, account.Email)
	require.NoError(t, err)

	_, err = auther.ResetPassword(ctx, reset.ResetToken.Value, "Fr3shSecret")
	require.NoError(t, err)

	_, err = auther.Login(ctx, account.Email, "Fr3shSecret")
	assert.NoError(t, err)
}
