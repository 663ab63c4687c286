package identity

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by structured errors so callers can branch without
// string matching on messages.
const (
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeEmailUnconfirmed    = "EMAIL_UNCONFIRMED"
	TextCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	TextCodeWeakPassword        = "WEAK_PASSWORD"
	TextCodeInvalidEmail        = "INVALID_EMAIL"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeTokenNotFound       = "TOKEN_NOT_FOUND"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenConsumed       = "TOKEN_ALREADY_USED"
	TextCodeTokenPurpose        = "TOKEN_PURPOSE_MISMATCH"
	TextCodeVersionConflict     = "VERSION_CONFLICT"
	TextCodeElevationRequired   = "ELEVATION_REQUIRED"
	TextCodeSessionNotFound     = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError  = "SESSION_DECODE_ERROR"
	TextCodeClaimsMappingError  = "CLAIMS_MAPPING_ERROR"
	TextCodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	lockoutRemainingMetadataKey = "retry_after"
)

// ErrInvalidCredentials covers both unknown email and wrong password so the
// response does not reveal whether the account exists.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned while a lockout window is active. Use
// LockoutRemaining to read the remaining duration.
var ErrAccountLocked = goerrors.New("account is temporarily locked", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked)

// ErrEmailUnconfirmed blocks login until the confirmation token is consumed.
var ErrEmailUnconfirmed = goerrors.New("email address has not been confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailUnconfirmed).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateEmail is returned when registration hits the unique email
// constraint (comparison is case-insensitive).
var ErrDuplicateEmail = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is returned when a password fails the strength policy.
var ErrWeakPassword = goerrors.New("password does not meet the strength policy", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidEmail is returned for malformed email addresses.
var ErrInvalidEmail = goerrors.New("email address is not valid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrMismatchedHashAndPassword is the internal comparison failure; the
// engine maps it to ErrInvalidCredentials before it crosses the boundary.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match stored hash", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrTokenNotFound means no token row matches the presented value.
var ErrTokenNotFound = goerrors.New("token not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrTokenExpired means the token exists but its expiry has passed.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenConsumed means the token was already used; tokens are single-use.
var ErrTokenConsumed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenConsumed).
	WithCode(goerrors.CodeConflict)

// ErrTokenPurposeMismatch means the token exists but was issued for a
// different flow.
var ErrTokenPurposeMismatch = goerrors.New("token was issued for a different purpose", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenPurpose)

// ErrVersionConflict signals a lost optimistic-concurrency race; callers may
// retry the whole operation.
var ErrVersionConflict = goerrors.New("account was modified concurrently, retry", goerrors.CategoryConflict).
	WithTextCode(TextCodeVersionConflict).
	WithCode(goerrors.CodeConflict)

// ErrElevationRequired guards admin password replacement: admin role alone
// is not enough, the caller must explicitly request elevated mode.
var ErrElevationRequired = goerrors.New("operation requires elevated privileges", goerrors.CategoryAuth).
	WithTextCode(TextCodeElevationRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed means the session token could not be parsed or its
// signature did not verify.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToFindSession is the error when a request carries no session
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound)

// ErrUnableToDecodeSession unable to decode the signed session token
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithTextCode(TextCodeClaimsMappingError)

// newAccountLockedError attaches the remaining lockout window to the
// ErrAccountLocked chain so callers can show a retry hint.
func newAccountLockedError(remaining time.Duration) error {
	return goerrors.Wrap(ErrAccountLocked, goerrors.CategoryRateLimit, "account is temporarily locked").
		WithTextCode(TextCodeAccountLocked).
		WithMetadata(map[string]any{
			lockoutRemainingMetadataKey: remaining.String(),
		})
}

// LockoutRemaining reports the remaining lockout window carried by an
// ErrAccountLocked error, and whether the error carries one.
func LockoutRemaining(err error) (time.Duration, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0, false
	}
	raw, ok := richErr.Metadata[lockoutRemainingMetadataKey]
	if !ok {
		return 0, false
	}
	s, ok := raw.(string)
	if !ok {
		return 0, false
	}
	d, parseErr := time.ParseDuration(s)
	if parseErr != nil {
		return 0, false
	}
	return d, true
}

// newTransientError classifies storage or deadline failures as retryable
// without leaking internals to the caller.
func newTransientError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(TextCodeStorageUnavailable)
}

// IsTransientError reports whether the caller should treat the failure as
// retryable ("try again") rather than a terminal rejection.
func IsTransientError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeStorageUnavailable
}
