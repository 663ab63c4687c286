package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LockoutPolicy drives the failed-access counters. Counting is done with
// atomic UPDATEs in the store: concurrent failures each observe their own
// incremented count, so the threshold check never misses.
type LockoutPolicy struct {
	repo RepositoryManager
	cfg  LockoutConfig
	now  func() time.Time
}

func NewLockoutPolicy(repo RepositoryManager, cfg LockoutConfig) *LockoutPolicy {
	if cfg == (LockoutConfig{}) {
		cfg = DefaultLockoutConfig()
	}
	return &LockoutPolicy{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
	}
}

// FailuresToLock is the number of consecutive failures that trips a lock.
func (p *LockoutPolicy) FailuresToLock() int {
	return p.cfg.Threshold
}

// IsLocked reports whether the account is inside a lockout window, and how
// long remains.
func (p *LockoutPolicy) IsLocked(account *Account) (bool, time.Duration) {
	until, locked := account.LockedUntil(p.now())
	if !locked {
		return false, 0
	}
	return true, until.Sub(p.now())
}

// RecordFailure counts a failed attempt and locks the account when the
// threshold is crossed. It reports whether this failure triggered a lock.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	account, err := p.repo.Accounts().TrackFailedAccessTx(ctx, tx, id)
	if err != nil {
		return false, err
	}

	if account.FailedAccessCount < p.cfg.Threshold {
		return false, nil
	}

	until := p.now().Add(p.DurationFor(account.LockoutCount))
	if _, err := p.repo.Accounts().LockTx(ctx, tx, id, until); err != nil {
		return false, err
	}

	return true, nil
}

// RecordSuccess resets the counters and clears any expired lock.
func (p *LockoutPolicy) RecordSuccess(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return p.repo.Accounts().TrackSuccessfulAccessTx(ctx, tx, id)
}

// DurationFor returns the lockout window for the nth lock (zero-based):
// the base duration grows by BackoffFactor each time, capped at
// MaxDuration.
func (p *LockoutPolicy) DurationFor(priorLockouts int) time.Duration {
	d := p.cfg.Duration
	factor := p.cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	for i := 0; i < priorLockouts; i++ {
		d *= time.Duration(factor)
		if d >= p.cfg.MaxDuration {
			return p.cfg.MaxDuration
		}
	}

	if d > p.cfg.MaxDuration {
		return p.cfg.MaxDuration
	}
	return d
}
