package identity

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetAccountPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"is_email_confirmed" = TRUE,
	"password_hash" = ?,
	"failed_access_count" = 0,
	"lockout_end_at" = NULL,
	"version" = "version" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

var SetAccountPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"version" = "version" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."version" = ?
AND (
	"acc"."id" = ?
) RETURNING *;`

var TrackFailedAccessSQL = `UPDATE "accounts" AS "acc"
SET
	"failed_access_count" = "failed_access_count" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

var LockAccountSQL = `UPDATE "accounts" AS "acc"
SET
	"lockout_end_at" = ?,
	"lockout_count" = "lockout_count" + 1,
	"failed_access_count" = 0,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

var ConfirmAccountEmailSQL = `UPDATE "accounts" AS "acc"
SET
	"is_email_confirmed" = TRUE,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

// Accounts is the credential store. Tracking updates run as single atomic
// UPDATE statements so concurrent logins never clobber each other's
// counters.
type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)

	TrackFailedAccess(ctx context.Context, id uuid.UUID) (*Account, error)
	TrackFailedAccessTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	TrackSuccessfulAccess(ctx context.Context, id uuid.UUID) error
	TrackSuccessfulAccessTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	Lock(ctx context.Context, id uuid.UUID, until time.Time) (*Account, error)
	LockTx(ctx context.Context, tx bun.IDB, id uuid.UUID, until time.Time) (*Account, error)

	ConfirmEmail(ctx context.Context, id uuid.UUID) error
	ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, version int64) error
	SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, version int64) error
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	ListPage(ctx context.Context, opts ListAccountsOptions) (*AccountPage, error)
}

// ListAccountsOptions paginate the account listing with an opaque keyset
// cursor. Limit is capped at 100.
type ListAccountsOptions struct {
	PageToken string
	Limit     int
}

// AccountPage is one page of the account listing. NextPageToken is empty on
// the last page.
type AccountPage struct {
	Accounts      []*Account `json:"accounts"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)

	record, err := a.Repository.CreateTx(ctx, tx, account)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) TrackFailedAccess(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.TrackFailedAccessTx(ctx, a.db, id)
}

// TrackFailedAccessTx increments the failure counter in a single UPDATE and
// returns the updated row, so concurrent failures each see their own count.
func (a *accounts) TrackFailedAccessTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, TrackFailedAccessSQL, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *accounts) TrackSuccessfulAccess(ctx context.Context, id uuid.UUID) error {
	return a.TrackSuccessfulAccessTx(ctx, a.db, id)
}

func (a *accounts) TrackSuccessfulAccessTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	// NOTE: Updating using the ORM wont reset lockout_end_at to NULL,
	// the zero value gets skipped. Raw SQL it is.
	lastLoginAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"last_login_at" = ?,
			"failed_access_count" = 0,
			"lockout_end_at" = NULL,
			"updated_at" = CURRENT_TIMESTAMP
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, lastLoginAt, id).Exec(ctx)

	return err
}

func (a *accounts) Lock(ctx context.Context, id uuid.UUID, until time.Time) (*Account, error) {
	return a.LockTx(ctx, a.db, id, until)
}

func (a *accounts) LockTx(ctx context.Context, tx bun.IDB, id uuid.UUID, until time.Time) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, LockAccountSQL, until, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *accounts) ConfirmEmail(ctx context.Context, id uuid.UUID) error {
	return a.ConfirmEmailTx(ctx, a.db, id)
}

func (a *accounts) ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, tx, ConfirmAccountEmailSQL, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *accounts) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, version int64) error {
	return a.SetPasswordTx(ctx, a.db, id, passwordHash, version)
}

// SetPasswordTx replaces the hash only if the row still carries the version
// the caller read, so a concurrent change fails the update instead of being
// silently overwritten.
func (a *accounts) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string, version int64) error {
	res, err := a.Repository.RawTx(ctx, tx, SetAccountPasswordSQL, passwordHash, version, id.String())
	if err != nil {
		return err
	}

	if len(res) > 0 {
		return nil
	}

	record := &Account{}
	err = tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return err
	}

	return ErrVersionConflict
}

func (a *accounts) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

// ResetPasswordTx also confirms the email and clears any lockout: a consumed
// reset token proves the caller controls the address.
func (a *accounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetAccountPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

// ListPage pages through accounts with an id keyset. The embedded
// repository already claims List for criteria queries.
func (a *accounts) ListPage(ctx context.Context, opts ListAccountsOptions) (*AccountPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	var records []*Account
	q := a.db.NewSelect().
		Model(&records).
		Order("id ASC").
		Limit(limit + 1)

	if opts.PageToken != "" {
		afterID, err := decodePageToken(opts.PageToken)
		if err != nil {
			return nil, err
		}
		q = q.Where("?TableAlias.id > ?", afterID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	page := &AccountPage{}
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1]
		page.NextPageToken = encodePageToken(last)
	}
	page.Accounts = records

	return page, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Username == "" {
		record.Username = usernameFromEmail(record.Email)
	}

	if record.Role == "" {
		record.Role = RoleGuest
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func usernameFromEmail(email string) string {
	if strings.Contains(email, "@") {
		return strings.Split(email, "@")[0]
	}
	return email
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func encodePageToken(last *Account) string {
	return base64.RawURLEncoding.EncodeToString([]byte(last.ID.String()))
}

func decodePageToken(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed page token")
	}

	id, err := uuid.Parse(string(raw))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed page token")
	}

	return id.String(), nil
}
