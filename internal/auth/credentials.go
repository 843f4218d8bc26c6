package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Credential digest schemes. The scheme is stored per user so a deployment
// can switch schemes without invalidating existing accounts.
const (
	SchemeHMACSHA256 = "hmac-sha256"
	SchemeArgon2id   = "argon2id"
)

// Argon2id parameters (OWASP recommendation).
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

const (
	// saltLength is the length of the per-user alphanumeric salt.
	saltLength = 20

	// ticketLength is the length of an issued session ticket.
	ticketLength = 25

	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ErrUnknownScheme is returned for a digest scheme this build cannot compute.
var ErrUnknownScheme = errors.New("unknown credential scheme")

// CredentialHasher computes and verifies credential digests.
//
// Every digest starts from HMAC-SHA256(key, username || secret || salt), so a
// leaked users table cannot be attacked offline without the deployment key.
// The argon2id scheme additionally stretches that value with a memory-hard hash.
type CredentialHasher struct {
	key    []byte
	scheme string

	decoyOnce sync.Once
	decoy     *User
}

// NewCredentialHasher returns a hasher that uses scheme for new digests.
func NewCredentialHasher(key, scheme string) (*CredentialHasher, error) {
	if key == "" {
		return nil, errors.New("credential key must not be empty")
	}
	if scheme == "" {
		scheme = SchemeHMACSHA256
	}
	if scheme != SchemeHMACSHA256 && scheme != SchemeArgon2id {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	return &CredentialHasher{key: []byte(key), scheme: scheme}, nil
}

// Scheme returns the scheme applied to new digests.
func (h *CredentialHasher) Scheme() string {
	return h.scheme
}

// Digest computes the stored digest for a new credential using the hasher's scheme.
func (h *CredentialHasher) Digest(username, secret, salt string) (string, error) {
	keyed := h.keyed(username, secret, salt)

	switch h.scheme {
	case SchemeArgon2id:
		return hashArgon2id(keyed)
	default:
		return hex.EncodeToString(keyed), nil
	}
}

// Verify recomputes the digest for secret with the user's stored salt and
// scheme and compares it in constant time.
func (h *CredentialHasher) Verify(user *User, secret string) (bool, error) {
	keyed := h.keyed(user.Username, secret, user.CredentialSalt)

	switch user.CredentialScheme {
	case SchemeHMACSHA256, "":
		want, err := hex.DecodeString(user.CredentialDigest)
		if err != nil {
			return false, fmt.Errorf("decoding stored digest: %w", err)
		}
		return hmac.Equal(want, keyed), nil
	case SchemeArgon2id:
		return verifyArgon2id(keyed, user.CredentialDigest)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownScheme, user.CredentialScheme)
	}
}

// VerifyAbsent performs the same work as Verify for an account that does not
// exist, so a failed lookup costs as much as a wrong secret. The result is
// always a mismatch.
func (h *CredentialHasher) VerifyAbsent(username, secret string) {
	h.decoyOnce.Do(func() {
		salt, err := randomString(saltLength)
		if err != nil {
			return
		}
		digest, err := h.Digest("", salt, salt)
		if err != nil {
			return
		}
		h.decoy = &User{CredentialDigest: digest, CredentialSalt: salt, CredentialScheme: h.scheme}
	})
	if h.decoy == nil {
		return
	}
	decoy := *h.decoy
	decoy.Username = username
	h.Verify(&decoy, secret) //nolint:errcheck // Outcome is discarded
}

func (h *CredentialHasher) keyed(username, secret, salt string) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(username)) //nolint:errcheck // hash.Hash.Write never fails
	mac.Write([]byte(secret))   //nolint:errcheck // hash.Hash.Write never fails
	mac.Write([]byte(salt))     //nolint:errcheck // hash.Hash.Write never fails
	return mac.Sum(nil)
}

// hashArgon2id returns input hashed with Argon2id in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func hashArgon2id(input []byte) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey(input, salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyArgon2id(input []byte, encoded string) (bool, error) {
	salt, hash, params, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey(input, salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, errors.New("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, hash, params, nil
}

// randomString returns n characters drawn uniformly from the alphanumeric alphabet.
func randomString(n int) (string, error) {
	limit := big.NewInt(int64(len(alphanumeric)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("reading random: %w", err)
		}
		b.WriteByte(alphanumeric[idx.Int64()])
	}
	return b.String(), nil
}

// HashTicket returns the SHA-256 hex digest under which a ticket is stored.
// Raw ticket values are never persisted.
func HashTicket(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
