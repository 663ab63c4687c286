package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ConsumeTokenSQL = `UPDATE "tokens" AS "tok"
SET
	"consumed_at" = ?
WHERE
	"tok"."value" = ?
AND "tok"."purpose" = ?
AND "tok"."consumed_at" IS NULL
AND "tok"."expires_at" > ?
RETURNING *;`

// Tokens stores single-use opaque tokens. Consume is a single conditional
// UPDATE: of any number of concurrent calls with the same value exactly one
// sees the row.
type Tokens interface {
	repository.Repository[*Token]

	GetByValue(ctx context.Context, value string) (*Token, error)
	GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*Token, error)

	Consume(ctx context.Context, value string, purpose TokenPurpose, now time.Time) (*Token, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, value string, purpose TokenPurpose, now time.Time) (*Token, error)

	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type tokens struct {
	repository.Repository[*Token]
	db *bun.DB
}

var (
	_ Tokens                        = (*tokens)(nil)
	_ repository.Repository[*Token] = (*tokens)(nil)
)

func NewTokensRepository(db *bun.DB) Tokens {
	repo := repository.NewRepository[*Token](db, repository.ModelHandlers[*Token]{
		NewRecord: func() *Token { return &Token{} },
		GetID: func(t *Token) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Token, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &tokens{
		Repository: repo,
		db:         db,
	}
}

func (r *tokens) GetByValue(ctx context.Context, value string) (*Token, error) {
	return r.GetByValueTx(ctx, r.db, value)
}

func (r *tokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*Token, error) {
	record := &Token{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.value = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	return record, nil
}

func (r *tokens) Consume(ctx context.Context, value string, purpose TokenPurpose, now time.Time) (*Token, error) {
	return r.ConsumeTx(ctx, r.db, value, purpose, now)
}

// ConsumeTx marks the token used and returns it. When the conditional
// UPDATE matches nothing it re-reads the row to report why.
func (r *tokens) ConsumeTx(ctx context.Context, tx bun.IDB, value string, purpose TokenPurpose, now time.Time) (*Token, error) {
	res, err := r.Repository.RawTx(ctx, tx, ConsumeTokenSQL, now, value, purpose, now)
	if err != nil {
		return nil, err
	}

	if len(res) > 0 {
		return res[0], nil
	}

	record, err := r.GetByValueTx(ctx, tx, value)
	if err != nil {
		return nil, err
	}

	switch {
	case record.Purpose != purpose:
		return nil, ErrTokenPurposeMismatch
	case record.Consumed():
		return nil, ErrTokenConsumed
	case record.Expired(now):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenNotFound
	}
}

func (r *tokens) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*Token)(nil)).
		Where("?TableAlias.expires_at <= ?", before).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
