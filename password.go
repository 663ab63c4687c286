package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the tunables for argon2id hashing. They are encoded into
// each hash so verification keeps working after the defaults change.
type Argon2Params struct {
	Memory      uint32 `json:"memory"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"salt_length"`
	KeyLength   uint32 `json:"key_length"`
}

// DefaultArgon2Params follows the RFC 9106 low-memory recommendation.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PasswordHasher hashes with argon2id and verifies both argon2id and legacy
// bcrypt hashes, so imported accounts keep working until rehash-on-login
// upgrades them.
type PasswordHasher struct {
	params Argon2Params
}

// NewPasswordHasher builds a hasher; zero params get the defaults.
func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	if params == (Argon2Params{}) {
		params = DefaultArgon2Params()
	}
	return &PasswordHasher{params: params}
}

// HashPassword will generate a password hash in PHC string format
func (p *PasswordHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	salt := make([]byte, p.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate salt")
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		p.params.Time,
		p.params.Memory,
		p.params.Parallelism,
		p.params.KeyLength,
	)

	hash := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.params.Memory,
		p.params.Time,
		p.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return hash, nil
}

// ComparePasswordAndHash will validate the given cleartext password matches
// the hashed password. Legacy bcrypt hashes are recognized by their prefix.
func (p *PasswordHasher) ComparePasswordAndHash(password, hash string) error {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return compareArgon2(password, hash)
	case strings.HasPrefix(hash, "$2"):
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			return ErrMismatchedHashAndPassword
		}
		return nil
	default:
		return ErrMismatchedHashAndPassword
	}
}

// NeedsRehash reports whether the stored hash should be regenerated: legacy
// bcrypt, or argon2id with stale parameters.
func (p *PasswordHasher) NeedsRehash(hash string) bool {
	if !strings.HasPrefix(hash, "$argon2id$") {
		return true
	}
	params, _, _, err := decodeArgon2Hash(hash)
	if err != nil {
		return true
	}
	return params != p.params
}

// fallbackDecoyHash is a well formed argon2id hash used when the random
// generator fails. The decoy only ever needs to be comparable, never valid.
const fallbackDecoyHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// RandomPasswordHash returns a hash of a throwaway random password. It is
// used as a decoy comparison target when the account does not exist, so the
// unknown-email path costs the same as a wrong-password one. Compute it
// once and reuse it; hashing is deliberately expensive.
func (p *PasswordHasher) RandomPasswordHash() string {
	h, err := p.HashPassword(uuid.New().String())
	if err != nil {
		return fallbackDecoyHash
	}
	return h
}

func compareArgon2(password, hash string) error {
	params, salt, key, err := decodeArgon2Hash(hash)
	if err != nil {
		return err
	}

	other := argon2.IDKey(
		[]byte(password),
		salt,
		params.Time,
		params.Memory,
		params.Parallelism,
		params.KeyLength,
	)

	if subtle.ConstantTimeCompare(key, other) != 1 {
		return ErrMismatchedHashAndPassword
	}
	return nil
}

func decodeArgon2Hash(hash string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, goerrors.New("malformed argon2id hash", goerrors.CategoryBadInput)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed argon2id version")
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, goerrors.New("unsupported argon2id version", goerrors.CategoryBadInput)
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed argon2id params")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed argon2id salt")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed argon2id key")
	}

	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))
	return params, salt, key, nil
}
