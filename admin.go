package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminCreateAccountMessage creates an account on behalf of an operator.
// Accounts created this way are confirmed immediately; no token flow runs.
type AdminCreateAccountMessage struct {
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (m AdminCreateAccountMessage) Type() string { return "admin.account.create" }

// AdminUpdateAccountMessage updates profile fields and optionally replaces
// the password. Nil pointers leave the field untouched. Changing the email
// demotes the account to unconfirmed, same as a self-service change.
type AdminUpdateAccountMessage struct {
	AccountID uuid.UUID `json:"account_id"`
	FullName  *string   `json:"full_name,omitempty"`
	Username  *string   `json:"username,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Role      *string   `json:"role,omitempty"`

	// Password replacement needs both the admin role and an explicit
	// Elevated acknowledgement; it bypasses the owner's knowledge.
	Password *string `json:"password,omitempty"`
	Elevated bool    `json:"elevated,omitempty"`
}

func (m AdminUpdateAccountMessage) Type() string { return "admin.account.update" }

// AdminUpdateAccountResponse carries the updated account, plus the fresh
// confirmation token when the update changed the email.
type AdminUpdateAccountResponse struct {
	Account           *Account
	ConfirmationToken *Token
	EmailDispatched   bool
}

// requireAdmin resolves the caller's account from the session and checks
// the role against the store, not the token, so a demoted admin loses
// access as soon as the row changes.
func (s *Auther) requireAdmin(ctx context.Context, session Session) (*Account, error) {
	if session == nil {
		return nil, ErrUnableToFindSession
	}

	account, err := s.repo.Accounts().GetByID(ctx, session.GetUserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, newTransientError(err, "admin lookup failed")
	}

	if !RoleIsAtLeast(account.Role, RoleAdmin) {
		return nil, goerrors.New("caller is not an administrator", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return account, nil
}

// ListAccounts pages through all accounts in creation order.
func (s *Auther) ListAccounts(ctx context.Context, session Session, opts ListAccountsOptions) (*AccountPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	if _, err := s.requireAdmin(ctx, session); err != nil {
		return nil, err
	}

	return s.repo.Accounts().ListPage(ctx, opts)
}

// AdminCreateAccount creates a confirmed account with the given role and
// password.
func (s *Auther) AdminCreateAccount(ctx context.Context, session Session, msg AdminCreateAccountMessage) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	admin, err := s.requireAdmin(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := ValidateEmail(msg.Email); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(msg.Password, s.cfg.MinPasswordLength); err != nil {
		return nil, err
	}

	role := UserRole(msg.Role)
	if role == "" {
		role = RoleMember
	}
	if !IsValidRole(role) {
		return nil, goerrors.New("unknown role", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"role": msg.Role})
	}

	hash, err := s.hasher.HashPassword(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var account *Account
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account = &Account{
			FullName:       msg.FullName,
			Username:       msg.Username,
			Email:          msg.Email,
			Phone:          NormalizePhone(msg.Phone, ""),
			Role:           role,
			PasswordHash:   hash,
			EmailConfirmed: true,
		}

		account, err = s.repo.Accounts().RegisterTx(ctx, tx, account)
		return err
	})

	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventAdminAccountCreated, s.actorFromAccount(admin), account.ID.String(), map[string]any{
		"role": string(account.Role),
	})

	return account, nil
}

// AdminUpdateAccount applies the requested field changes.
func (s *Auther) AdminUpdateAccount(ctx context.Context, session Session, msg AdminUpdateAccountMessage) (*AdminUpdateAccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	admin, err := s.requireAdmin(ctx, session)
	if err != nil {
		return nil, err
	}

	if msg.Password != nil && !msg.Elevated {
		return nil, ErrElevationRequired
	}
	if msg.Password != nil {
		if err := ValidatePasswordStrength(*msg.Password, s.cfg.MinPasswordLength); err != nil {
			return nil, err
		}
	}
	if msg.Email != nil {
		if err := ValidateEmail(*msg.Email); err != nil {
			return nil, err
		}
	}
	if msg.Role != nil && !IsValidRole(UserRole(*msg.Role)) {
		return nil, goerrors.New("unknown role", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"role": *msg.Role})
	}

	resp := &AdminUpdateAccountResponse{}
	emailChanged := false

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &Account{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.id = ?", msg.AccountID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return err
		}

		record := &Account{ID: msg.AccountID}
		dirty := false
		if msg.FullName != nil {
			record.FullName = *msg.FullName
			dirty = true
		}
		if msg.Username != nil {
			record.Username = *msg.Username
			dirty = true
		}
		if msg.Phone != nil {
			record.Phone = NormalizePhone(*msg.Phone, "")
			dirty = true
		}
		if msg.Email != nil && NormalizeEmail(*msg.Email) != current.Email {
			record.Email = NormalizeEmail(*msg.Email)
			emailChanged = true
			dirty = true
		}
		if msg.Role != nil {
			record.Role = UserRole(*msg.Role)
			dirty = true
		}

		if dirty {
			if _, err = s.repo.Accounts().UpdateTx(ctx, tx, record, repository.UpdateByID(msg.AccountID.String())); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateEmail
				}
				if repository.IsRecordNotFound(err) {
					return ErrIdentityNotFound
				}
				return err
			}
		}

		if emailChanged {
			// The new address is unproven even when an admin sets it.
			_, err := tx.NewUpdate().
				Model((*Account)(nil)).
				Set("is_email_confirmed = ?", false).
				Where("id = ?", msg.AccountID).
				Exec(ctx)
			if err != nil {
				return err
			}

			token, err := s.tokens.IssueTx(ctx, tx, msg.AccountID, PurposeEmailConfirmation)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue confirmation token")
			}
			resp.ConfirmationToken = token
		}

		if msg.Password != nil {
			hash, err := s.hasher.HashPassword(*msg.Password)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
			}
			if err := s.repo.Accounts().SetPasswordTx(ctx, tx, current.ID, hash, current.Version); err != nil {
				return err
			}
		}

		account := &Account{}
		if err := tx.NewSelect().
			Model(account).
			Where("?TableAlias.id = ?", msg.AccountID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		resp.Account = account

		return nil
	})

	if err != nil {
		return nil, err
	}

	if s.mailer != nil && resp.ConfirmationToken != nil {
		subject, body := confirmationEmail(resp.ConfirmationToken.Value)
		if err := s.mailer.Send(ctx, resp.Account.Email, subject, body); err != nil {
			s.logger.Warn("confirmation email dispatch failed: %v", err)
		} else {
			resp.EmailDispatched = true
		}
	}

	s.emitAuthEvent(ctx, ActivityEventAdminAccountUpdated, s.actorFromAccount(admin), resp.Account.ID.String(), map[string]any{
		"password_changed": msg.Password != nil,
		"email_changed":    emailChanged,
	})

	return resp, nil
}
