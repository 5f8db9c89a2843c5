package security

import (
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("Password123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "Password123" {
		t.Fatal("Hash returned unusable digest")
	}
	ok, err := h.Verify(hash, "Password123")
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
}

func TestHasher_VerifyWrongPassword(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash("Password123")
	ok, err := h.Verify(hash, "wrongpassword")
	if err != nil {
		t.Fatalf("mismatch should not be an error: %v", err)
	}
	if ok {
		t.Fatal("Verify with wrong password should fail")
	}
}

func TestHasher_VerifyMalformedDigest(t *testing.T) {
	h := NewHasher(4)
	ok, err := h.Verify("not-a-bcrypt-hash", "x")
	if ok || err == nil {
		t.Fatalf("malformed digest: ok=%v err=%v", ok, err)
	}
}

func TestHasher_EmptySecret(t *testing.T) {
	if _, err := NewHasher(4).Hash(""); err != ErrEmptySecret {
		t.Fatalf("want ErrEmptySecret, got %v", err)
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(12); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h := NewHasher(0); h.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h.Cost)
	}
	if h := NewHasher(99); h.Cost != 31 {
		t.Errorf("cost above max should clamp to 31, got %d", h.Cost)
	}
}
