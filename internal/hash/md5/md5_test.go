// Package md5 includes tests for the MD5 identity helpers.
package md5

import "testing"

// TestHexDeterministic ensures repeated hashing yields the same digest.
func TestHexDeterministic(t *testing.T) {
	t.Parallel()

	got := Hex("hello world")
	want := "5eb63bbbe01eeed093cb22bb8f5acdc3"
	if got != want {
		t.Fatalf("Hex() = %s, want %s", got, want)
	}
	if again := Hex("hello world"); again != got {
		t.Fatalf("Hex() not deterministic: %s vs %s", again, got)
	}
}

// TestKeyJoinsWithPipe checks multi-part keys hash the joined string.
func TestKeyJoinsWithPipe(t *testing.T) {
	t.Parallel()

	if Key("hello", "world") != Hex("hello|world") {
		t.Fatal("Key should hash parts joined by |")
	}
	if Key("a|b") != Key("a", "b") {
		t.Fatal("expected identical digests for equivalent joins")
	}
}

// TestShortTruncates checks prefix truncation bounds.
func TestShortTruncates(t *testing.T) {
	t.Parallel()

	if got := Short("hello world", 12); got != "5eb63bbbe01e" {
		t.Fatalf("Short() = %s", got)
	}
	if got := Short("hello world", 0); len(got) != 32 {
		t.Fatalf("Short(0) length = %d", len(got))
	}
}
