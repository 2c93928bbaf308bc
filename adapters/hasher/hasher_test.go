package hasher_test

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/roomkit/adapters/hasher"
)

func TestBcrypt_CostFallback(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{bcrypt.MinCost, bcrypt.MinCost},
		{1, bcrypt.DefaultCost},
		{100, bcrypt.DefaultCost},
	}
	for _, tt := range tests {
		if got := hasher.NewBcrypt(tt.in).Cost(); got != tt.want {
			t.Errorf("NewBcrypt(%d).Cost() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBcrypt_HashAndCompare(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !hasher.IsHash(string(hash)) {
		t.Errorf("IsHash(%q) = false", hash)
	}
	if !h.Compare(hash, "s3cret") {
		t.Error("Compare should accept the right password")
	}
	if h.Compare(hash, "wrong") {
		t.Error("Compare should reject the wrong password")
	}

	padded := append([]byte("  "), append(hash, '\n')...)
	if !h.Compare(padded, "s3cret") {
		t.Error("Compare should ignore surrounding whitespace")
	}
}

func TestBcrypt_Rejects(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	if _, err := h.Hash(""); !errors.Is(err, hasher.ErrEmptyPassword) {
		t.Errorf("Hash(\"\") error = %v, want ErrEmptyPassword", err)
	}
	if h.Compare(nil, "") {
		t.Error("Compare with empty hash should fail")
	}
	if h.Compare([]byte("plaintext"), "plaintext") {
		t.Error("Compare should not accept a plaintext hash")
	}
	if hasher.IsHash("plaintext") {
		t.Error("IsHash(plaintext) = true")
	}
}

func TestFake(t *testing.T) {
	f := hasher.Fake{}

	hash, err := f.Hash("pw")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if string(hash) != "fake:pw" {
		t.Errorf("hash = %q", hash)
	}
	if !f.Compare(hash, "pw") || f.Compare(hash, "other") {
		t.Error("Fake.Compare mismatch")
	}
	if _, err := f.Hash(""); !errors.Is(err, hasher.ErrEmptyPassword) {
		t.Errorf("Fake.Hash(\"\") error = %v", err)
	}
}
