package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ConfirmEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ConfirmEmailResponse)
}

func (e ConfirmEmailMessage) Type() string { return "user.confirm_email" }

type ConfirmEmailResponse struct {
	Account *Account
	Success bool
}

type ConfirmEmailHandler struct {
	repo   RepositoryManager
	tokens *TokenService
	cfg    Config
}

func NewConfirmEmailHandler(repo RepositoryManager, tokens *TokenService, cfg Config) *ConfirmEmailHandler {
	return &ConfirmEmailHandler{
		repo:   repo,
		tokens: tokens,
		cfg:    cfg,
	}
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, event ConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, event ConfirmEmailMessage) error {
	resp := &ConfirmEmailResponse{}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.OperationTimeout)
	defer cancel()

	// Consuming the token and flipping the flag commit together, so a
	// crash in between can never burn the token without confirming.
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.tokens.ConsumeTx(ctx, tx, event.Token, PurposeEmailConfirmation)
		if err != nil {
			return err
		}

		if err := h.repo.Accounts().ConfirmEmailTx(ctx, tx, token.AccountID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account email")
		}

		account := &Account{}
		if err := tx.NewSelect().
			Model(account).
			Where("?TableAlias.id = ?", token.AccountID).
			Limit(1).
			Scan(ctx); err == nil {
			resp.Account = account
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "email confirmation transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
