package vault

import (
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBoxSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}

	sealed, err := box.Seal("see you at 8")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if sealed == "see you at 8" {
		t.Fatal("sealed value must not equal plaintext")
	}
	if got := box.Open(sealed); got != "see you at 8" {
		t.Fatalf("Open returned %q", got)
	}
}

func TestBoxNoncesAreUnique(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	a, err := box.Seal("same text")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	b, err := box.Seal("same text")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if a == b {
		t.Fatal("sealing the same text twice must differ")
	}
}

func TestBoxOpenFailsClosed(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}

	for _, bad := range []string{"", "not base64!!!", "aGVsbG8=", strings.Repeat("A", 4)} {
		if got := box.Open(bad); got != "" {
			t.Fatalf("Open(%q) = %q, want empty string", bad, got)
		}
	}
}

func TestBoxOpenRejectsWrongKey(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	other, err := NewBox(strings.Repeat("ff", 32))
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}

	sealed, err := box.Seal("secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if got := other.Open(sealed); got != "" {
		t.Fatalf("wrong key must fail closed, got %q", got)
	}
}

func TestNewBoxRejectsBadKeys(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "zz", "abcd", strings.Repeat("00", 16)} {
		if _, err := NewBox(bad); err == nil {
			t.Fatalf("NewBox(%q) must fail", bad)
		}
	}
}

func TestNoopPassesThrough(t *testing.T) {
	t.Parallel()

	var n Noop
	sealed, err := n.Seal("plain")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if sealed != "plain" || n.Open(sealed) != "plain" {
		t.Fatal("Noop must pass values through unchanged")
	}
}
