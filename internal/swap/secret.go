package swap

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// HashAlgorithm selects the commitment hash used by the HTLC contracts.
type HashAlgorithm string

const (
	// HashSHA3 is SHA3-256 (FIPS 202), used by the Move HTLC module.
	HashSHA3 HashAlgorithm = "sha3-256"
	// HashKeccak is legacy Keccak-256 as computed by the EVM.
	HashKeccak HashAlgorithm = "keccak256"
	// HashSHA256 is SHA-256.
	HashSHA256 HashAlgorithm = "sha256"
)

// ParseHashAlgorithm converts a config string into a HashAlgorithm.
// Empty selects HashSHA3.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch HashAlgorithm(strings.ToLower(s)) {
	case "":
		return HashSHA3, nil
	case HashSHA3:
		return HashSHA3, nil
	case HashKeccak:
		return HashKeccak, nil
	case HashSHA256:
		return HashSHA256, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q", s)
}

// Sum hashes the secret preimage and returns the 0x-prefixed hex digest.
func (a HashAlgorithm) Sum(secret string) string {
	b := SecretBytes(secret)

	var digest []byte
	switch a {
	case HashKeccak:
		digest = crypto.Keccak256(b)
	case HashSHA256:
		h := sha256.Sum256(b)
		digest = h[:]
	default:
		h := sha3.Sum256(b)
		digest = h[:]
	}
	return "0x" + hex.EncodeToString(digest)
}

// Verify reports whether hash(secret) equals secretHash.
func (a HashAlgorithm) Verify(secret, secretHash string) bool {
	want, err := NormalizeSecretHash(secretHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.Sum(secret)), []byte(want)) == 1
}

// SecretBytes returns the preimage bytes of a secret: 0x-prefixed hex is
// decoded, anything else is taken as UTF-8 text.
func SecretBytes(secret string) []byte {
	if strings.HasPrefix(secret, "0x") || strings.HasPrefix(secret, "0X") {
		if b, err := hex.DecodeString(secret[2:]); err == nil {
			return b
		}
	}
	return []byte(secret)
}

// NormalizeSecretHash validates a 32-byte hex commitment and returns it
// lower-cased with a 0x prefix.
func NormalizeSecretHash(h string) (string, error) {
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if len(h) != 64 {
		return "", fmt.Errorf("secret hash must be 32 bytes, got %d hex chars", len(h))
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("secret hash is not hex: %w", err)
	}
	return "0x" + strings.ToLower(h), nil
}
