package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"crm-service/pkg/config"
)

// PasswordHasher hashes new passwords with the configured KDF and verifies
// stored hashes of either supported family. The parameters of a stored hash
// are read from the hash itself, so changing the configuration never
// invalidates existing passwords.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int
	argon      argonParams

	dummyOnce sync.Once
	dummyHash string
}

type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

const argonPrefix = "$argon2id$"

var errUnknownHash = errors.New("unrecognised password hash format")

// NewPasswordHasher returns a hasher for cfg. The bcrypt cost is clamped to
// the range bcrypt accepts.
func NewPasswordHasher(cfg config.PasswordConfig) *PasswordHasher {
	cost := cfg.BcryptCost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	return &PasswordHasher{
		algorithm:  cfg.Hasher,
		bcryptCost: cost,
		argon: argonParams{
			memory:      cfg.Argon2MemoryKB,
			iterations:  cfg.Argon2Iterations,
			parallelism: cfg.Argon2Parallelism,
			saltLength:  16,
			keyLength:   32,
		},
	}
}

// Hash returns the encoded hash of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.algorithm == config.HasherArgon2id {
		return h.hashArgon2id(password)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches encoded. Values that are not a
// recognised hash never match; there is no plaintext comparison.
func (h *PasswordHasher) Verify(encoded, password string) (bool, error) {
	switch {
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	case strings.HasPrefix(encoded, argonPrefix):
		return verifyArgon2id(encoded, password)
	default:
		return false, errUnknownHash
	}
}

// Burn spends roughly the time of one verification. It keeps the response
// time of unknown accounts in line with known ones.
func (h *PasswordHasher) Burn(password string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = h.Hash("burn-" + password)
	})
	_, _ = h.Verify(h.dummyHash, password)
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

func (h *PasswordHasher) hashArgon2id(password string) (string, error) {
	salt := make([]byte, h.argon.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.argon.iterations, h.argon.memory, h.argon.parallelism, h.argon.keyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s", argonPrefix, argon2.Version,
		h.argon.memory, h.argon.iterations, h.argon.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2id(encoded, password string) (bool, error) {
	p, salt, key, err := decodeArgon2id(encoded)
	if err != nil {
		return false, fmt.Errorf("invalid hash format: %w", err)
	}

	other := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLength)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

// decodeArgon2id parses "$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>".
func decodeArgon2id(encoded string) (p argonParams, salt, key []byte, err error) {
	vals := strings.Split(encoded, "$")
	if len(vals) != 6 {
		return p, nil, nil, errors.New("hash has wrong parts")
	}

	var version int
	if _, err = fmt.Sscanf(vals[2], "v=%d", &version); err != nil {
		return p, nil, nil, err
	}
	if version != argon2.Version {
		return p, nil, nil, errors.New("incompatible version")
	}

	if _, err = fmt.Sscanf(vals[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return p, nil, nil, err
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return p, nil, nil, errors.New("invalid parameters")
	}

	if salt, err = base64.RawStdEncoding.DecodeString(vals[4]); err != nil {
		return p, nil, nil, err
	}
	if key, err = base64.RawStdEncoding.DecodeString(vals[5]); err != nil {
		return p, nil, nil, err
	}
	if len(key) == 0 {
		return p, nil, nil, errors.New("empty key")
	}
	p.keyLength = uint32(len(key))
	return p, salt, key, nil
}
