package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 600_000
	saltSize         = 32
	derivedKeySize   = 32
)

// HashPassword derives a storable hash in the form
// base64(salt) ":" base64(key) using PBKDF2-HMAC-SHA256. Each call draws a
// fresh salt, so hashing the same password twice yields distinct strings.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, derivedKeySize, sha256.New)
	return base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(key), nil
}

// VerifyPassword reports whether password matches a hash produced by
// HashPassword. Malformed hashes simply fail verification.
func VerifyPassword(password, hash string) bool {
	if password == "" {
		return false
	}
	saltB64, keyB64, ok := strings.Cut(hash, ":")
	if !ok {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil || len(salt) != saltSize {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil || len(want) != derivedKeySize {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, derivedKeySize, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
