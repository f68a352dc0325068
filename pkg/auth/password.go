package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
)

// ErrInvalidHash is returned when a stored hash is not a PHC-encoded argon2id string
var ErrInvalidHash = errors.New("invalid password hash")

// HasherConfig holds argon2id cost parameters
type HasherConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHasherConfig returns the OWASP baseline for argon2id (19 MiB, t=2, p=1)
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2Hasher hashes and verifies passwords with argon2id
type Argon2Hasher struct {
	config HasherConfig
}

// NewArgon2Hasher validates the cost parameters and returns a hasher
func NewArgon2Hasher(cfg HasherConfig) (*Argon2Hasher, error) {
	if cfg.Memory < minMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKB)
	}
	if cfg.Time < 1 {
		return nil, errors.New("argon2 time must be >= 1")
	}
	if cfg.Parallelism < 1 {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("argon2 salt length must be >= %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return nil, fmt.Errorf("argon2 key length must be >= %d", minKeyLength)
	}
	return &Argon2Hasher{config: cfg}, nil
}

// Hash returns a PHC string: $argon2id$v=19$m=...,t=...,p=...$salt$hash
func (h *Argon2Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the encoded hash.
// A malformed hash returns ErrInvalidHash, never a match.
func (h *Argon2Hasher) Verify(password, encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidHash
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, ErrInvalidHash
	}

	var p phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return nil, ErrInvalidHash
	}
	if p.memory < minMemoryKB || p.time < 1 || p.parallelism < 1 {
		return nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < int(minKeyLength) {
		return nil, ErrInvalidHash
	}

	p.salt = salt
	p.key = key
	return &p, nil
}
