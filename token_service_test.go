package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueTokenCarriesPurposeTTL(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	account := seedTestAccount(t, repo)
	svc := NewTokenService(repo, 48*time.Hour, 24*time.Hour)

	at := time.Now()
	svc.now = fixedClock(at)

	confirmation, err := svc.Issue(context.Background(), account.ID, PurposeEmailConfirmation)
	require.NoError(t, err)
	assert.WithinDuration(t, at.Add(48*time.Hour), confirmation.ExpiresAt, time.Second)
	assert.NotEmpty(t, confirmation.Value)

	reset, err := svc.Issue(context.Background(), account.ID, PurposePasswordReset)
	require.NoError(t, err)
	assert.WithinDuration(t, at.Add(24*time.Hour), reset.ExpiresAt, time.Second)

	assert.NotEqual(t, confirmation.Value, reset.Value)
}

func TestValidateDoesNotConsume(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	account := seedTestAccount(t, repo)
	svc := NewTokenService(repo, time.Hour, time.Hour)

	issued, err := svc.Issue(context.Background(), account.ID, PurposePasswordReset)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Validate(context.Background(), issued.Value, PurposePasswordReset)
		require.NoError(t, err)
	}

	_, err = svc.Consume(context.Background(), issued.Value, PurposePasswordReset)
	assert.NoError(t, err)
}

func TestValidateClassifiesFailures(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	account := seedTestAccount(t, repo)
	svc := NewTokenService(repo, time.Hour, time.Hour)

	issued, err := svc.Issue(context.Background(), account.ID, PurposeEmailConfirmation)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), "unknown", PurposeEmailConfirmation)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = svc.Validate(context.Background(), issued.Value, PurposePasswordReset)
	assert.ErrorIs(t, err, ErrTokenPurposeMismatch)

	_, err = svc.Consume(context.Background(), issued.Value, PurposeEmailConfirmation)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), issued.Value, PurposeEmailConfirmation)
	assert.ErrorIs(t, err, ErrTokenConsumed)
}

func TestValidateExpiredToken(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	account := seedTestAccount(t, repo)
	svc := NewTokenService(repo, time.Hour, time.Hour)

	issued, err := svc.Issue(context.Background(), account.ID, PurposePasswordReset)
	require.NoError(t, err)

	svc.now = fixedClock(time.Now().Add(2 * time.Hour))

	_, err = svc.Validate(context.Background(), issued.Value, PurposePasswordReset)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
