package identity

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// LockoutConfig drives the failed-access lockout policy. Each time an
// account gets locked again its window grows by BackoffFactor, capped at
// MaxDuration.
type LockoutConfig struct {
	Threshold     int           `json:"threshold"`
	Duration      time.Duration `json:"duration"`
	BackoffFactor int           `json:"backoff_factor"`
	MaxDuration   time.Duration `json:"max_duration"`
}

// Config holds the options for the whole engine. Zero values are filled in
// by WithDefaults; Validate rejects configs that cannot work.
type Config struct {
	SigningKey           string        `json:"signing_key"`
	Issuer               string        `json:"issuer"`
	Audience             []string      `json:"audience"`
	SessionTTL           time.Duration `json:"session_ttl"`
	ConfirmationTokenTTL time.Duration `json:"confirmation_token_ttl"`
	ResetTokenTTL        time.Duration `json:"reset_token_ttl"`
	OperationTimeout     time.Duration `json:"operation_timeout"`
	MinPasswordLength    int           `json:"min_password_length"`
	Lockout              LockoutConfig `json:"lockout"`
	Password             Argon2Params  `json:"password"`

	// AdminEmail and AdminPassword seed the initial admin account when
	// EnsureAdminAccount runs. Leave empty to skip seeding.
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"-"`
}

// DefaultLockoutConfig mirrors the classic five-strikes, fifteen-minute
// policy.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold:     5,
		Duration:      15 * time.Minute,
		BackoffFactor: 2,
		MaxDuration:   24 * time.Hour,
	}
}

// WithDefaults fills in any unset option and returns the config for
// chaining.
func (c Config) WithDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = "identity"
	}
	if len(c.Audience) == 0 {
		c.Audience = []string{"identity"}
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.ConfirmationTokenTTL == 0 {
		c.ConfirmationTokenTTL = 48 * time.Hour
	}
	if c.ResetTokenTTL == 0 {
		c.ResetTokenTTL = 24 * time.Hour
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 10 * time.Second
	}
	if c.MinPasswordLength == 0 {
		c.MinPasswordLength = 8
	}
	if c.Lockout == (LockoutConfig{}) {
		c.Lockout = DefaultLockoutConfig()
	}
	if c.Password == (Argon2Params{}) {
		c.Password = DefaultArgon2Params()
	}
	return c
}

// Validate checks the config can actually sign sessions and enforce the
// policies it describes.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.SessionTTL, validation.Required),
		validation.Field(&c.ConfirmationTokenTTL, validation.Required),
		validation.Field(&c.ResetTokenTTL, validation.Required),
		validation.Field(&c.MinPasswordLength, validation.Min(8)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Lockout,
		validation.Field(&c.Lockout.Threshold, validation.Required, validation.Min(1)),
		validation.Field(&c.Lockout.Duration, validation.Required),
		validation.Field(&c.Lockout.BackoffFactor, validation.Min(1)),
		validation.Field(&c.Lockout.MaxDuration, validation.Required),
	)
}
