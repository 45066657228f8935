// Package keys decodes the harvester's Nostr identity and validates the
// hex-encoded key and id fields carried by relay events.
package keys

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

const (
	// PubKeySize is the length of a BIP-340 x-only public key.
	PubKeySize = 32
	// EventIDSize is the length of a sha256 event id.
	EventIDSize = 32
)

// Pair is a secp256k1 key pair in hex form, as go-nostr expects it.
type Pair struct {
	Secret string
	Public string
}

// DecodeSecretKey decodes a bech32 "nsec" secret key and derives its
// public key.
func DecodeSecretKey(nsec string) (Pair, error) {
	prefix, value, err := nip19.Decode(nsec)
	if err != nil {
		return Pair{}, fmt.Errorf("secret key: invalid bech32: %w", err)
	}
	if prefix != "nsec" {
		return Pair{}, fmt.Errorf("secret key: expected nsec, got %q", prefix)
	}
	sk, ok := value.(string)
	if !ok {
		return Pair{}, fmt.Errorf("secret key: unexpected decoded type %T", value)
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return Pair{}, fmt.Errorf("secret key: derive public key: %w", err)
	}
	return Pair{Secret: sk, Public: pk}, nil
}

// Npub returns the bech32 form of the public key.
func (p Pair) Npub() string {
	npub, err := nip19.EncodePublicKey(p.Public)
	if err != nil {
		return p.Public
	}
	return npub
}

// String never prints the secret.
func (p Pair) String() string {
	return "keys.Pair{" + p.Npub() + "}"
}

// ParsePubKey checks that s is a lowercase-or-uppercase hex encoding of a
// valid 32-byte x-only public key.
func ParsePubKey(s string) error {
	b, err := decodeHex(s, PubKeySize)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}
	if _, err := schnorr.ParsePubKey(b); err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}
	return nil
}

// DecodeEventID decodes a hex event id and validates it is exactly 32 bytes.
func DecodeEventID(s string) ([]byte, error) {
	b, err := decodeHex(s, EventIDSize)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	return b, nil
}

func decodeHex(s string, size int) ([]byte, error) {
	if len(s) != size*2 {
		return nil, fmt.Errorf("expected %d hex chars, got %d", size*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
