package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the account's role
type UserRole = string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an owner role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// Account is the credential record. Email is stored normalized (lowercased,
// trimmed) so the unique constraint is effectively case-insensitive.
type Account struct {
	bun.BaseModel     `bun:"table:accounts,alias:acc"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role              UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username          string     `bun:"username,notnull,unique" json:"username,omitempty"`
	FullName          string     `bun:"full_name" json:"full_name,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone             string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash      string     `bun:"password_hash" json:"-"`
	EmailConfirmed    bool       `bun:"is_email_confirmed" json:"is_email_confirmed,omitempty"`
	FailedAccessCount int        `bun:"failed_access_count" json:"failed_access_count,omitempty"`
	LockoutEndAt      *time.Time `bun:"lockout_end_at,nullzero" json:"lockout_end_at,omitempty"`
	LockoutCount      int        `bun:"lockout_count" json:"lockout_count,omitempty"`
	Version           int64      `bun:"version,notnull,default:0" json:"version,omitempty"`
	LastLoginAt       *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// LockedUntil reports whether the account is inside a lockout window at the
// given instant, and when the window ends.
func (a *Account) LockedUntil(now time.Time) (time.Time, bool) {
	if a.LockoutEndAt == nil || !a.LockoutEndAt.After(now) {
		return time.Time{}, false
	}
	return *a.LockoutEndAt, true
}

// NormalizeEmail lowercases and trims an email address. All storage and
// lookups go through this so comparisons are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TokenPurpose binds a token to the flow it was issued for
type TokenPurpose = string

const (
	// PurposeEmailConfirmation tokens prove ownership of a new address
	PurposeEmailConfirmation TokenPurpose = "email_confirmation"
	// PurposePasswordReset tokens authorize a password replacement
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Token is a single-use opaque token tied to an account and a purpose.
type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:tok"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID    `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	Value         string       `bun:"value,notnull,unique" json:"-"`
	IssuedAt      *time.Time   `bun:"issued_at,nullzero,default:current_timestamp" json:"issued_at,omitempty"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
}

// Consumed reports whether the token was already used.
func (t *Token) Consumed() bool {
	return t.ConsumedAt != nil
}

// Expired reports whether the token's validity window has passed.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Usable reports whether the token can still be consumed at the given
// instant.
func (t *Token) Usable(now time.Time) bool {
	return !t.Consumed() && !t.Expired(now)
}
