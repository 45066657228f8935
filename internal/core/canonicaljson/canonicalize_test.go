package canonicaljson

import (
	"testing"
)

func TestCanonicalizeRaw_MemberOrdering(t *testing.T) {
	input := []byte(`{"sig":"s","content":"hello","id":"x"}`)
	expected := `{"content":"hello","id":"x","sig":"s"}`

	got, err := CanonicalizeRaw(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != expected {
		t.Errorf("got %s, want %s", got, expected)
	}
}

func TestCanonicalizeRaw_WhitespaceRemoval(t *testing.T) {
	input := []byte(`{
  "tags": [ ["t", "jobstr"], ["p", "abc"] ],
  "created_at": 1700000000
}`)
	expected := `{"created_at":1700000000,"tags":[["t","jobstr"],["p","abc"]]}`

	got, err := CanonicalizeRaw(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != expected {
		t.Errorf("got %s, want %s", got, expected)
	}
}

func TestCanonicalizeRaw_Invalid(t *testing.T) {
	if _, err := CanonicalizeRaw([]byte(`{"a":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestCanonicalize_Struct(t *testing.T) {
	v := struct {
		Z int            `json:"z"`
		A map[string]int `json:"a"`
	}{Z: 1, A: map[string]int{"c": 3, "b": 2}}
	expected := `{"a":{"b":2,"c":3},"z":1}`

	got, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != expected {
		t.Errorf("got %s, want %s", got, expected)
	}
}

func TestFingerprint_OrderInsensitiveForMembers(t *testing.T) {
	a, err := Fingerprint(map[string]any{"a": 1, "b": []string{"x", "y"}})
	if err != nil {
		t.Fatalf("fingerprint a: %v", err)
	}
	b, err := Fingerprint(map[string]any{"b": []string{"x", "y"}, "a": 1})
	if err != nil {
		t.Fatalf("fingerprint b: %v", err)
	}
	if a != b {
		t.Errorf("expected equal fingerprints, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprint_ArrayOrderMatters(t *testing.T) {
	a, _ := Fingerprint([]string{"t", "jobstr"})
	b, _ := Fingerprint([]string{"jobstr", "t"})
	if a == b {
		t.Error("array order must change the fingerprint")
	}
}
