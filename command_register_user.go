package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FullName   string `json:"full_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	Account           *Account
	ConfirmationToken *Token
	EmailDispatched   bool
}

type RegisterUserHandler struct {
	repo   RepositoryManager
	tokens *TokenService
	hasher *PasswordHasher
	mailer Mailer
	logger Logger
	cfg    Config
}

func NewRegisterUserHandler(repo RepositoryManager, tokens *TokenService, hasher *PasswordHasher, mailer Mailer, logger Logger, cfg Config) *RegisterUserHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &RegisterUserHandler{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		mailer: mailer,
		logger: logger,
		cfg:    cfg,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	resp := &RegisterUserResponse{}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.OperationTimeout)
	defer cancel()

	if err := ValidateEmail(event.Email); err != nil {
		return err
	}

	if err := ValidatePasswordStrength(event.Password, h.cfg.MinPasswordLength); err != nil {
		return err
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := h.hasher.HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account := &Account{}
		account.PasswordHash = hash
		account.Email = event.Email
		account.Phone = NormalizePhone(event.Phone, "")
		account.FullName = event.FullName
		account.Username = event.Username
		if role, ok := ParseRole(event.Role); ok {
			account.Role = role
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
				account.ID = id
			}
		}

		if account, err = h.repo.Accounts().RegisterTx(ctx, tx, account); err != nil {
			if goerrors.Is(err, ErrDuplicateEmail) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}
		resp.Account = account

		token, err := h.tokens.IssueTx(ctx, tx, account.ID, PurposeEmailConfirmation)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue confirmation token")
		}
		resp.ConfirmationToken = token

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	// Mail after commit: a failed dispatch must not roll back the account.
	if h.mailer != nil && resp.ConfirmationToken != nil {
		subject, body := confirmationEmail(resp.ConfirmationToken.Value)
		if err := h.mailer.Send(ctx, resp.Account.Email, subject, body); err != nil {
			h.logger.Warn("confirmation email dispatch failed: %v", err)
		} else {
			resp.EmailDispatched = true
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
