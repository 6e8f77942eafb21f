package vault_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openintentos/openintent/internal/vault"
)

func testKey(b byte) []byte {
	key := make([]byte, vault.KeySize)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(7)
	plaintext := []byte(`{"token":"abc123"}`)

	nonce, ciphertext, err := vault.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(nonce) != vault.NonceSize {
		t.Fatalf("nonce length = %d", len(nonce))
	}
	if len(ciphertext) != len(plaintext)+vault.TagSize {
		t.Fatalf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+vault.TagSize)
	}

	got, err := vault.Decrypt(key, nonce, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestEncryptNoncesAreUnique(t *testing.T) {
	key := testKey(1)
	n1, _, err := vault.Encrypt(key, []byte("x"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	n2, _, err := vault.Encrypt(key, []byte("x"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(n1, n2) {
		t.Fatal("nonce reused across calls")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	key := testKey(2)
	nonce, ciphertext, err := vault.Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	flipped := append([]byte(nil), ciphertext...)
	flipped[0] ^= 0x01
	if _, err := vault.Decrypt(key, nonce, flipped); !errors.Is(err, vault.ErrDecryptionFailed) {
		t.Fatalf("tampered ciphertext: %v", err)
	}

	if _, err := vault.Decrypt(testKey(3), nonce, ciphertext); !errors.Is(err, vault.ErrDecryptionFailed) {
		t.Fatalf("wrong key: %v", err)
	}

	if _, err := vault.Decrypt(key, nonce[:4], ciphertext); !errors.Is(err, vault.ErrDecryptionFailed) {
		t.Fatalf("short nonce: %v", err)
	}
}

func TestEncryptRejectsBadKeySize(t *testing.T) {
	if _, _, err := vault.Encrypt([]byte("short"), []byte("x")); err == nil {
		t.Fatal("short key accepted")
	}
	if _, err := vault.Decrypt(make([]byte, 16), make([]byte, vault.NonceSize), []byte("x")); err == nil {
		t.Fatal("16-byte key accepted")
	}
}
