package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownHashFormat = errors.New("unknown password hash format")
	ErrMalformedHash     = errors.New("malformed password hash")
)

// Limits on cost parameters read back from stored hashes. Anything outside
// them is treated as malformed rather than handed to argon2.
const (
	maxArgon2MemoryKiB = 1 << 22
	maxArgon2Time      = 64
	maxArgon2KeyLen    = 128
)

// Hasher hashes new passwords and verifies candidates against stored hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// PasswordHasher writes argon2id hashes and verifies both argon2id and
// bcrypt hashes, so accounts imported with bcrypt keep working.
type PasswordHasher struct {
	params Argon2Params
}

var _ Hasher = (*PasswordHasher)(nil)

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	return &PasswordHasher{params: params}
}

// Hash returns $argon2id$v=19$m=65536,t=1,p=4$SALT$HASH.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLen)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(key)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.MemoryKiB, h.params.Time, h.params.Parallelism, encodedSalt, encodedKey), nil
}

// Verify compares password with the stored hash. A mismatch is (false, nil);
// an error means the stored hash itself could not be used.
func (h *PasswordHasher) Verify(encoded, password string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon2id(encoded, password)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
		return true, nil
	default:
		return false, ErrUnknownHashFormat
	}
}

func verifyArgon2id(encoded, password string) (bool, error) {
	// ["", "argon2id", "v=19", "m=65536,t=1,p=4", salt, hash]
	sections := strings.Split(encoded, "$")
	if len(sections) != 6 {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(sections[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}

	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(sections[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false, ErrMalformedHash
	}
	if t < 1 || t > maxArgon2Time || p < 1 || m < 8*uint32(p) || m > maxArgon2MemoryKiB {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(sections[5])
	if err != nil || len(expected) == 0 || len(expected) > maxArgon2KeyLen {
		return false, ErrMalformedHash
	}

	key := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
