package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const opaqueTokenBytes = 32

// TokenService issues and redeems the opaque single-use tokens used for
// email confirmation and password reset. Values are random, never derived
// from account data.
type TokenService struct {
	repo            RepositoryManager
	confirmationTTL time.Duration
	resetTTL        time.Duration
	now             func() time.Time
}

func NewTokenService(repo RepositoryManager, confirmationTTL, resetTTL time.Duration) *TokenService {
	return &TokenService{
		repo:            repo,
		confirmationTTL: confirmationTTL,
		resetTTL:        resetTTL,
		now:             time.Now,
	}
}

// Issue creates and stores a token for the account and purpose. The
// returned Token carries the plaintext value to hand to the mailer.
func (s *TokenService) Issue(ctx context.Context, accountID uuid.UUID, purpose TokenPurpose) (*Token, error) {
	var record *Token
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = s.IssueTx(ctx, tx, accountID, purpose)
		return err
	})
	return record, err
}

func (s *TokenService) IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, purpose TokenPurpose) (*Token, error) {
	value, err := generateTokenValue()
	if err != nil {
		return nil, err
	}

	now := s.now()
	record := &Token{
		ID:        uuid.New(),
		AccountID: accountID,
		Purpose:   purpose,
		Value:     value,
		IssuedAt:  &now,
		ExpiresAt: now.Add(s.ttlFor(purpose)),
	}

	return s.repo.Tokens().CreateTx(ctx, tx, record)
}

// Validate checks a token without consuming it, so callers can show a form
// before the user commits to the flow.
func (s *TokenService) Validate(ctx context.Context, value string, purpose TokenPurpose) (*Token, error) {
	record, err := s.repo.Tokens().GetByValue(ctx, value)
	if err != nil {
		return nil, err
	}

	switch {
	case record.Purpose != purpose:
		return nil, ErrTokenPurposeMismatch
	case record.Consumed():
		return nil, ErrTokenConsumed
	case record.Expired(s.now()):
		return nil, ErrTokenExpired
	}

	return record, nil
}

// Consume redeems a token. Tokens are single use: with concurrent calls for
// the same value exactly one succeeds.
func (s *TokenService) Consume(ctx context.Context, value string, purpose TokenPurpose) (*Token, error) {
	return s.repo.Tokens().Consume(ctx, value, purpose, s.now())
}

func (s *TokenService) ConsumeTx(ctx context.Context, tx bun.IDB, value string, purpose TokenPurpose) (*Token, error) {
	return s.repo.Tokens().ConsumeTx(ctx, tx, value, purpose, s.now())
}

func (s *TokenService) ttlFor(purpose TokenPurpose) time.Duration {
	if purpose == PurposePasswordReset {
		return s.resetTTL
	}
	return s.confirmationTTL
}

func generateTokenValue() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate token value")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
