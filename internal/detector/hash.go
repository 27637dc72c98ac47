package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

const (
	// partialHashSize is how much of a file's head the cheap
	// pre-screening hash covers (8KB).
	partialHashSize = 8 << 10
	// blockSize is the read buffer size for full-content hashing (1MB).
	blockSize = 1 << 20
)

// hashFile hashes a file's content with SHA-256 and returns the
// hex-encoded digest plus the number of bytes read. limit > 0 restricts
// hashing to the first limit bytes.
func hashFile(path string, limit int64) (hash string, bytesRead int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}

	hasher := sha256.New()
	buf := make([]byte, blockSize)
	n, err := io.CopyBuffer(hasher, r, buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
