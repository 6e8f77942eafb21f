package vault_test

import (
	"strings"
	"testing"

	"github.com/openintentos/openintent/internal/vault"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := vault.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.Contains(hash, ":") {
		t.Fatalf("hash %q missing salt separator", hash)
	}

	if !vault.VerifyPassword("correct horse", hash) {
		t.Fatal("right password rejected")
	}
	if vault.VerifyPassword("battery staple", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	h1, err := vault.HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := vault.HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("identical hashes for two calls")
	}
	if !vault.VerifyPassword("same", h1) || !vault.VerifyPassword("same", h2) {
		t.Fatal("verification failed for a fresh hash")
	}
}

func TestEmptyPasswordRejected(t *testing.T) {
	if _, err := vault.HashPassword(""); err == nil {
		t.Fatal("empty password accepted")
	}
	hash, _ := vault.HashPassword("x")
	if vault.VerifyPassword("", hash) {
		t.Fatal("empty password verified")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, hash := range []string{"", "no-separator", "a:b", "!!!:???"} {
		if vault.VerifyPassword("pw", hash) {
			t.Errorf("malformed hash %q verified", hash)
		}
	}
}
