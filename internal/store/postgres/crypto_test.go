package postgres

import (
	"bytes"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	sealed, err := c.Encrypt("imap-app-password")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(sealed, []byte("imap-app-password")) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "imap-app-password" {
		t.Errorf("Decrypt() = %q", got)
	}
}

func TestCipher_NonceVaries(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	a, _ := c.Encrypt("secret")
	b, _ := c.Encrypt("secret")
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext must differ")
	}
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	sealed, _ := c.Encrypt("secret")
	sealed[len(sealed)-1] ^= 0xff
	if _, err := c.Decrypt(sealed); err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
}

func TestNewCipher_BadKey(t *testing.T) {
	for _, key := range []string{"", "short", strings.Repeat("x", 33)} {
		if _, err := NewCipher(key); err == nil {
			t.Errorf("NewCipher(%d bytes) expected error", len(key))
		}
	}
}

func TestCipher_DecryptTooShort(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	if _, err := c.Decrypt([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated data")
	}
}
