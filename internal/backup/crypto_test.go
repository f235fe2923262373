package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(salt1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(salt1), saltSize)
	}

	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt 2: %v", err)
	}
	if bytes.Equal(salt1, salt2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := DeriveKey("mypassphrase", salt)
	if !bytes.Equal(key1, DeriveKey("mypassphrase", salt)) {
		t.Error("same passphrase and salt should produce the same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, DeriveKey("otherphrase", salt)) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	original := []byte("SQLite format 3\x00 calendar snapshot")

	sealed, err := Encrypt(original, "correct horse")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, original) {
		t.Error("ciphertext should not contain the plaintext")
	}

	again, err := Encrypt(original, "correct horse")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(sealed, again) {
		t.Error("each encryption should use a fresh salt and nonce")
	}

	got, err := Decrypt(sealed, "correct horse")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("decrypted = %q, want %q", got, original)
	}
}

func TestDecryptRejects(t *testing.T) {
	sealed, err := Encrypt([]byte("payload"), "right")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name       string
		data       []byte
		passphrase string
	}{
		{"wrong passphrase", sealed, "wrong"},
		{"tampered", tampered, "right"},
		{"truncated", sealed[:10], "right"},
	}
	for _, tt := range tests {
		if _, err := Decrypt(tt.data, tt.passphrase); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: err = %v, want ErrCorrupt", tt.name, err)
		}
	}
}
