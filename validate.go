package identity

import (
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// ValidateEmail checks the address is well formed. The store gets the
// normalized form, this only rejects garbage.
func ValidateEmail(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(ErrInvalidEmail, goerrors.CategoryValidation, err.Error()).
			WithTextCode(TextCodeInvalidEmail)
	}
	return nil
}

// ValidatePasswordStrength enforces the password policy: minimum length
// plus at least one upper case letter, one lower case letter, and one digit.
func ValidatePasswordStrength(password string, minLength int) error {
	if password == "" {
		return ErrNoEmptyString
	}
	if minLength <= 0 {
		minLength = 8
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if len([]rune(password)) < minLength || !hasUpper || !hasLower || !hasDigit {
		return ErrWeakPassword
	}

	return nil
}

// NormalizePhone formats the number as E.164 when it parses, and returns
// the input untouched otherwise. Phone is optional profile data, not a
// credential, so we never fail on it.
func NormalizePhone(phone, region string) string {
	if phone == "" {
		return ""
	}
	if region == "" {
		region = "US"
	}

	num, err := phonenumbers.Parse(phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
