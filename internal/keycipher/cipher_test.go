package keycipher

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintexts := []string{
		"a",
		"0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		strings.Repeat("k", 64),
		strings.Repeat("block-sized-edge", 2), // exactly two AES blocks
	}
	for _, plaintext := range plaintexts {
		encrypted, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		decrypted, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", plaintext, err)
		}
		if decrypted != plaintext {
			t.Fatalf("round trip mismatch: got %q want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptProducesFreshEnvelopes(t *testing.T) {
	c, _ := New("unit-test-secret")
	first, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if first == second {
		t.Fatal("two encryptions of the same plaintext must differ (random salt/iv)")
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c, _ := New("unit-test-secret")

	cases := map[string]string{
		"not base64":        "%%%not-base64%%%",
		"too short":         base64.StdEncoding.EncodeToString([]byte("short")),
		"not block aligned": base64.StdEncoding.EncodeToString(make([]byte, 16+16+17)),
	}
	for name, input := range cases {
		if _, err := c.Decrypt(input); !errors.Is(err, ErrDecryption) {
			t.Errorf("%s: expected ErrDecryption, got %v", name, err)
		}
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	c, _ := New("unit-test-secret")
	plaintext := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	encrypted, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	for i := 0; i < len(raw); i += 7 {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01
		decrypted, err := c.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		if err == nil && decrypted == plaintext {
			t.Fatalf("flipping byte %d went unnoticed", i)
		}
		if err != nil && !errors.Is(err, ErrDecryption) {
			t.Fatalf("flipping byte %d: unexpected error type %v", i, err)
		}
	}
}

func TestDecryptWithWrongSecret(t *testing.T) {
	first, _ := New("secret-one")
	second, _ := New("secret-two")

	encrypted, err := first.Encrypt("0xdeadbeefdeadbeefdeadbeefdeadbeef")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := second.Decrypt(encrypted)
	if err == nil && decrypted == "0xdeadbeefdeadbeefdeadbeefdeadbeef" {
		t.Fatal("wrong secret recovered the plaintext")
	}
	if err != nil && !errors.Is(err, ErrDecryption) {
		t.Fatalf("unexpected error type: %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}
