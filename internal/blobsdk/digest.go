package blobsdk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

const (
	DigestSHA256 = "sha256"
	DigestBLAKE3 = "blake3"
)

func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "", DigestSHA256:
		return sha256.New(), nil
	case DigestBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("sdk: unsupported digest algorithm %q", algorithm)
	}
}

// DigestReader hashes r with the algorithm the server addresses content by
func DigestReader(algorithm string, r io.Reader) (string, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func DigestFile(algorithm, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return DigestReader(algorithm, f)
}
