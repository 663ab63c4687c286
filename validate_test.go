package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"valid", "Sup3rSecret", nil},
		{"empty", "", ErrNoEmptyString},
		{"too short", "Ab1", ErrWeakPassword},
		{"no upper", "sup3rsecret", ErrWeakPassword},
		{"no lower", "SUP3RSECRET", ErrWeakPassword},
		{"no digit", "SuperSecret", ErrWeakPassword},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tc.password, 8)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("pepe.rone@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("not-an-email"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "pepe@example.com", NormalizeEmail("  Pepe@Example.COM "))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+14155552671", NormalizePhone("(415) 555-2671", "US"))
	assert.Equal(t, "", NormalizePhone("", "US"))
	// unparseable input comes back untouched
	assert.Equal(t, "garbage", NormalizePhone("garbage", "US"))
}
