package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	DigestSHA256 = "sha256"
	DigestBLAKE3 = "blake3"

	maxDigestLen = 128
)

// Addresser computes content digests with one fixed algorithm
type Addresser struct {
	name    string
	newHash func() hash.Hash
}

func NewAddresser(algorithm string) (*Addresser, error) {
	switch algorithm {
	case "", DigestSHA256:
		return &Addresser{name: DigestSHA256, newHash: sha256.New}, nil
	case DigestBLAKE3:
		return &Addresser{name: DigestBLAKE3, newHash: func() hash.Hash { return blake3.New() }}, nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q", algorithm)
	}
}

func (a *Addresser) Name() string {
	return a.name
}

// NewHasher returns a streaming hasher; finish it with HexSum
func (a *Addresser) NewHasher() hash.Hash {
	return a.newHash()
}

func (a *Addresser) DigestOf(data []byte) string {
	h := a.newHash()
	h.Write(data)
	return HexSum(h)
}

func HexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

func NormalizeDigest(digest string) string {
	return strings.ToLower(strings.TrimSpace(digest))
}

// ValidateDigest accepts any non-empty even-length hex string up to 128 characters.
// Declared digests are compared, not recomputed, so short test digests are allowed.
func ValidateDigest(digest string) error {
	if digest == "" {
		return invalid("digest is required")
	}
	if len(digest) > maxDigestLen {
		return invalid("digest longer than %d characters", maxDigestLen)
	}
	if len(digest)%2 != 0 {
		return invalid("digest must have an even number of hex characters")
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return invalid("digest is not hex")
	}
	return nil
}

func DigestsEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
