package crypto

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2Parameters controls the cost factors for Argon2id key derivation.
type Argon2Parameters struct {
	// Time is the number of iterations.
	Time uint32
	// Memory is the amount of memory (in kibibytes) to use.
	Memory uint32
	// Threads is the degree of parallelism.
	Threads uint8
	// KeyLength is the desired length of the derived key in bytes.
	KeyLength uint32
}

// DefaultTokenParams returns the Argon2id parameters used for hashing access
// token secrets. Token secrets carry 32 bytes of entropy, so the cost factors
// are lower than what a human password would need; verification happens on
// every authenticated request.
func DefaultTokenParams() Argon2Parameters {
	return Argon2Parameters{
		Time:      1,
		Memory:    16 * 1024, // 16 MiB
		Threads:   2,
		KeyLength: 32,
	}
}

// Validate ensures the parameters are suitable for Argon2id key derivation.
func (p Argon2Parameters) Validate() error {
	if p.Time == 0 {
		return fmt.Errorf("argon2: time cost must be greater than zero")
	}
	if p.Threads == 0 {
		return fmt.Errorf("argon2: parallelism must be greater than zero")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("argon2: memory cost must be at least 8 * threads")
	}
	switch p.KeyLength {
	case 16, 24, 32:
	default:
		return fmt.Errorf("argon2: key length must be 16, 24, or 32 bytes (got %d)", p.KeyLength)
	}
	return nil
}

// HashSecret derives a base64-encoded Argon2id hash of secret under salt.
func HashSecret(secret string, salt []byte, params Argon2Parameters) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("argon2: secret is required")
	}
	if len(salt) < 16 {
		return "", fmt.Errorf("argon2: salt must be at least 16 bytes (got %d)", len(salt))
	}
	if err := params.Validate(); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, params.Time, params.Memory, params.Threads, params.KeyLength)
	return base64.RawStdEncoding.EncodeToString(key), nil
}

// VerifySecret recomputes the hash of secret under salt and compares it with
// the stored hash in constant time.
func VerifySecret(secret string, salt []byte, storedHash string, params Argon2Parameters) bool {
	computed, err := HashSecret(secret, salt, params)
	if err != nil {
		return false
	}
	return ConstantTimeEquals(computed, storedHash)
}
