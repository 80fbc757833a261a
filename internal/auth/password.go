// internal/auth/password.go
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash is returned for a stored password that is not a PHC-style argon2id string.
	ErrInvalidHash = errors.New("auth: malformed password hash")
	// ErrIncompatibleVersion is returned for a hash made by another argon2 version.
	ErrIncompatibleVersion = errors.New("auth: unsupported argon2 version")
)

// HashParams tunes argon2id. Stored hashes carry their own parameters, so changing the
// defaults only affects new accounts.
type HashParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams is used for every account password.
var DefaultHashParams = HashParams{
	Memory:      64 * 1024,
	Iterations:  5,
	Parallelism: cpuThreads(),
	SaltLength:  16,
	KeyLength:   32,
}

func cpuThreads() uint8 {
	n := runtime.NumCPU() / 2
	switch {
	case n < 1:
		return 1
	case n > 255:
		return 255
	}
	return uint8(n)
}

// HashPassword hashes a new account password with DefaultHashParams.
func HashPassword(password string) (string, error) {
	return hashWith(password, DefaultHashParams)
}

// hashWith encodes as $argon2id$v=19$m=..,t=..,p=..$salt$key.
func hashWith(password string, p HashParams) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// CheckPassword reports whether password matches the stored hash. A hash that cannot
// be decoded is an error, not a mismatch.
func CheckPassword(password, stored string) (bool, error) {
	p, salt, key, err := decodeHash(stored)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func decodeHash(stored string) (HashParams, []byte, []byte, error) {
	var p HashParams
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
