package hashing

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

	"github.com/lmasson/giftwise-api/pkg/config"
)

const algorithmID = "argon2id"

var errInvalidHash = errors.New("invalid argon2 hash encoding")

// Argon2Hasher produces salted, self-describing argon2id digests in PHC
// string format. The same hasher is used for account passwords and for raw
// refresh/reset/verification tokens, so none of those secrets is ever
// persisted in recoverable form.
type Argon2Hasher struct {
	memory      uint32
	time        uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewArgon2Hasher builds a hasher from configuration, falling back to safe
// parameters for any zero value.
func NewArgon2Hasher(cfg config.HashingConfig) *Argon2Hasher {
	h := &Argon2Hasher{
		memory:      cfg.Memory,
		time:        cfg.Time,
		parallelism: cfg.Parallelism,
		saltLength:  cfg.SaltLength,
		keyLength:   cfg.KeyLength,
	}
	if h.memory == 0 {
		h.memory = 64 * 1024
	}
	if h.time == 0 {
		h.time = 3
	}
	if h.parallelism == 0 {
		h.parallelism = 2
	}
	if h.saltLength == 0 {
		h.saltLength = 16
	}
	if h.keyLength == 0 {
		h.keyLength = 32
	}
	return h
}

// Hash returns a PHC-encoded argon2id digest of the secret. A fresh random
// salt is drawn on every call, so two hashes of the same input differ.
func (h *Argon2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, h.time, h.memory, h.parallelism, h.keyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.memory,
		h.time,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks a secret against a PHC-encoded digest using the parameters
// recorded in the digest itself, comparing in constant time.
func (h *Argon2Hasher) Verify(secret, encoded string) (bool, error) {
	memory, time, parallelism, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), salt, time, memory, parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func decodeHash(encoded string) (memory, time uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return 0, 0, 0, nil, nil, errInvalidHash
	}

	version, convErr := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if convErr != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errInvalidHash
	}

	if _, scanErr := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); scanErr != nil {
		return 0, 0, 0, nil, nil, errInvalidHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, errInvalidHash
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, errInvalidHash
	}

	return memory, time, parallelism, salt, key, nil
}
