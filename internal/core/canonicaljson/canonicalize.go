// Package canonicaljson produces RFC 8785 (JCS) canonical JSON, used as the
// structural identity of a harvested note.
package canonicaljson

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// Canonicalize marshals v and returns its canonical UTF-8 bytes.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	return CanonicalizeRaw(raw)
}

// CanonicalizeRaw returns the canonical form of raw JSON bytes.
func CanonicalizeRaw(raw json.RawMessage) ([]byte, error) {
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: transform: %w", err)
	}
	return out, nil
}

// Fingerprint returns the hex sha256 of the canonical form of v. Two values
// share a fingerprint iff their JSON encodings are structurally equal.
func Fingerprint(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
