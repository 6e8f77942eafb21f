package main

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeVaultKeyBase64(t *testing.T) {
	key := bytes.Repeat([]byte{0xAB}, 32)
	got, err := decodeVaultKey(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatal("decoded key mismatch")
	}
}

func TestDecodeVaultKeyHex(t *testing.T) {
	key := bytes.Repeat([]byte{0x0F}, 32)
	got, err := decodeVaultKey(hex.EncodeToString(key))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatal("decoded key mismatch")
	}
}

func TestDecodeVaultKeyWrongLength(t *testing.T) {
	if _, err := decodeVaultKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestDecodeVaultKeyGarbage(t *testing.T) {
	if _, err := decodeVaultKey("!!! not a key !!!"); err == nil {
		t.Fatal("expected error for undecodable input")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nOPENINTENT_TEST_A=hello\n\nOPENINTENT_TEST_B = spaced \nmalformed line\n=novalue\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("OPENINTENT_TEST_A", "")
	t.Setenv("OPENINTENT_TEST_B", "")
	os.Unsetenv("OPENINTENT_TEST_A")
	os.Unsetenv("OPENINTENT_TEST_B")

	loadDotEnv(path)

	if got := os.Getenv("OPENINTENT_TEST_A"); got != "hello" {
		t.Errorf("OPENINTENT_TEST_A = %q", got)
	}
	if got := os.Getenv("OPENINTENT_TEST_B"); got != "spaced" {
		t.Errorf("OPENINTENT_TEST_B = %q", got)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("OPENINTENT_TEST_C=file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("OPENINTENT_TEST_C", "env")

	loadDotEnv(path)

	if got := os.Getenv("OPENINTENT_TEST_C"); got != "env" {
		t.Errorf("OPENINTENT_TEST_C = %q, want env", got)
	}
}
