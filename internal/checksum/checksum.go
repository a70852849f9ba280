// Package checksum computes file digests off the hot path. The caller
// hands over a path and an algorithm and gets the hex digest back on a
// callback once the worker goroutine finishes.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ErrUnknownAlgorithm is returned for algorithm names outside the
// supported set (MD5, SHA1, SHA256, SHA512).
var ErrUnknownAlgorithm = fmt.Errorf("unknown checksum algorithm")

func newHasher(algorithm string) (hash.Hash, error) {
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "MD5":
		return md5.New(), nil
	case "SHA1":
		return sha1.New(), nil
	case "SHA256":
		return sha256.New(), nil
	case "SHA512":
		return sha512.New(), nil
	}
	return nil, ErrUnknownAlgorithm
}

// Supported reports whether the algorithm name is one we can compute.
func Supported(algorithm string) bool {
	_, err := newHasher(algorithm)
	return err == nil
}

// File hashes the file at path synchronously with 1 MiB reads.
func File(path, algorithm string) (string, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 1024*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileAsync hashes on a worker goroutine and delivers (digest, err) to
// done. The callback runs on the worker; callers serialize on their side.
func FileAsync(path, algorithm string, done func(digest string, err error)) {
	go func() {
		digest, err := File(path, algorithm)
		done(digest, err)
	}()
}
