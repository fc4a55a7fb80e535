package util

import (
	"testing"
)

func TestHashContent(t *testing.T) {
	// SHA-256 of the empty string
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashContent(nil); got != empty {
		t.Errorf("expected %s, got %s", empty, got)
	}

	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("hello!"))
	if a != b {
		t.Error("same content should hash equally")
	}
	if a == c {
		t.Error("different content should hash differently")
	}
}

func TestBlake3HashHex(t *testing.T) {
	h := Blake3HashHex([]byte("hello world"))
	if len(h) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h))
	}
	if h == HashContent([]byte("hello world")) {
		t.Error("blake3 and sha256 digests should differ")
	}
}
