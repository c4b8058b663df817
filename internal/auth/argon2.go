package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash indicates the hash format is invalid.
	ErrInvalidHash = errors.New("invalid hash format")
	// ErrIncompatibleVersion indicates the hash version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

const operatorSaltLen = 16

// argonParams are the argon2id cost settings carried in a PHC string.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	keyLen  uint32
}

// operatorKeyParams is the cost used for newly hashed operator keys.
var operatorKeyParams = argonParams{
	memory:  64 * 1024,
	time:    3,
	threads: 4,
	keyLen:  32,
}

// Upper bound on the memory a stored hash may ask for, so a bad
// OPERATOR_KEY_HASH cannot make every enable/disable allocate gigabytes.
const maxArgonMemory = 1024 * 1024

// operatorKeyHash is a decoded $argon2id$ PHC string.
type operatorKeyHash struct {
	params argonParams
	salt   []byte
	sum    []byte
}

func (h operatorKeyHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memory,
		h.params.time,
		h.params.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.sum),
	)
}

func (h operatorKeyHash) matches(key string) bool {
	sum := argon2.IDKey([]byte(key), h.salt, h.params.time, h.params.memory, h.params.threads, uint32(len(h.sum)))
	return subtle.ConstantTimeCompare(sum, h.sum) == 1
}

// HashOperatorKey hashes key for the OPERATOR_KEY_HASH setting.
func HashOperatorKey(key string) (string, error) {
	salt := make([]byte, operatorSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	p := operatorKeyParams
	h := operatorKeyHash{
		params: p,
		salt:   salt,
		sum:    argon2.IDKey([]byte(key), salt, p.time, p.memory, p.threads, p.keyLen),
	}
	return h.String(), nil
}

// CheckOperatorKeyHash reports whether encoded is a usable hash without
// verifying any key against it.
func CheckOperatorKeyHash(encoded string) error {
	_, err := parseOperatorKeyHash(encoded)
	return err
}

// VerifyOperatorKey reports whether key matches encoded in constant time.
func VerifyOperatorKey(key, encoded string) (bool, error) {
	h, err := parseOperatorKeyHash(encoded)
	if err != nil {
		return false, err
	}
	return h.matches(key), nil
}

func parseOperatorKeyHash(encoded string) (operatorKeyHash, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, sum
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return operatorKeyHash{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return operatorKeyHash{}, ErrInvalidHash
	}
	if version != argon2.Version {
		return operatorKeyHash{}, ErrIncompatibleVersion
	}

	var h operatorKeyHash
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &h.params.memory, &h.params.time, &h.params.threads); err != nil {
		return operatorKeyHash{}, ErrInvalidHash
	}
	if h.params.memory == 0 || h.params.memory > maxArgonMemory || h.params.time == 0 || h.params.threads == 0 {
		return operatorKeyHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || len(h.salt) == 0 {
		return operatorKeyHash{}, ErrInvalidHash
	}
	if h.sum, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(h.sum) == 0 {
		return operatorKeyHash{}, ErrInvalidHash
	}
	h.params.keyLen = uint32(len(h.sum))

	return h, nil
}
