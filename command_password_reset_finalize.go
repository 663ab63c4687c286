package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	AccountID string
	Success   bool
}

type FinalizePasswordResetHandler struct {
	repo   RepositoryManager
	tokens *TokenService
	hasher *PasswordHasher
	cfg    Config
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, tokens *TokenService, hasher *PasswordHasher, cfg Config) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		cfg:    cfg,
	}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	resp := &FinalizePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.OperationTimeout)
	defer cancel()

	// Strength check comes first: a policy rejection must leave the token
	// usable for another attempt.
	if err := ValidatePasswordStrength(event.Password, h.cfg.MinPasswordLength); err != nil {
		return err
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.tokens.ConsumeTx(ctx, tx, event.Token, PurposePasswordReset)
		if err != nil {
			return err
		}

		if err := h.repo.Accounts().ResetPasswordTx(ctx, tx, token.AccountID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace password")
		}

		resp.AccountID = token.AccountID.String()
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
