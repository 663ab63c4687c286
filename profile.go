package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// UpdateProfileMessage is the self-service profile update. Nil pointers
// leave the field untouched. Changing the email demotes the account to
// unconfirmed and issues a fresh confirmation token.
type UpdateProfileMessage struct {
	FullName *string `json:"full_name,omitempty"`
	Username *string `json:"username,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty"`
}

func (m UpdateProfileMessage) Type() string { return "user.profile.update" }

type UpdateProfileResponse struct {
	Account           *Account
	ConfirmationToken *Token
	EmailDispatched   bool
}

// UpdateProfile applies the caller's own profile changes.
func (s *Auther) UpdateProfile(ctx context.Context, session Session, msg UpdateProfileMessage) (*UpdateProfileResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	if session == nil {
		return nil, ErrUnableToFindSession
	}

	userID, err := session.GetUserUUID()
	if err != nil {
		return nil, ErrUnableToMapClaims
	}

	if msg.Email != nil {
		if err := ValidateEmail(*msg.Email); err != nil {
			return nil, err
		}
	}

	resp := &UpdateProfileResponse{}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &Account{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.id = ?", userID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return err
		}

		record := &Account{ID: userID}
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

		emailChanged := false
		if msg.Email != nil && NormalizeEmail(*msg.Email) != current.Email {
			record.Email = NormalizeEmail(*msg.Email)
			emailChanged = true
			dirty = true
		}

		if dirty {
			if _, err := s.repo.Accounts().UpdateTx(ctx, tx, record, repository.UpdateByID(userID.String())); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateEmail
				}
				return err
			}
		}

		if emailChanged {
			// The new address is unproven, treat it like a registration.
			_, err := tx.NewUpdate().
				Model((*Account)(nil)).
				Set("is_email_confirmed = ?", false).
				Where("id = ?", userID).
				Exec(ctx)
			if err != nil {
				return err
			}

			token, err := s.tokens.IssueTx(ctx, tx, userID, PurposeEmailConfirmation)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue confirmation token")
			}
			resp.ConfirmationToken = token
		}

		account := &Account{}
		if err := tx.NewSelect().
			Model(account).
			Where("?TableAlias.id = ?", userID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		resp.Account = account

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	if s.mailer != nil && resp.ConfirmationToken != nil {
		subject, body := confirmationEmail(resp.ConfirmationToken.Value)
		if err := s.mailer.Send(ctx, resp.Account.Email, subject, body); err != nil {
			s.logger.Warn("confirmation email dispatch failed: %v", err)
		} else {
			resp.EmailDispatched = true
		}
	}

	return resp, nil
}
