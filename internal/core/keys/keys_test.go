package keys

import (
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

func genNsec(t *testing.T) (string, string) {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		t.Fatalf("EncodePrivateKey: %v", err)
	}
	return sk, nsec
}

func TestDecodeSecretKey_Valid(t *testing.T) {
	sk, nsec := genNsec(t)

	pair, err := DecodeSecretKey(nsec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.Secret != sk {
		t.Errorf("secret mismatch")
	}
	want, _ := nostr.GetPublicKey(sk)
	if pair.Public != want {
		t.Errorf("got pubkey %s, want %s", pair.Public, want)
	}
	if !strings.HasPrefix(pair.Npub(), "npub1") {
		t.Errorf("expected npub prefix, got %s", pair.Npub())
	}
}

func TestDecodeSecretKey_WrongPrefix(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	npub, _ := nip19.EncodePublicKey(pk)

	if _, err := DecodeSecretKey(npub); err == nil {
		t.Error("expected error for npub given as secret key")
	}
}

func TestDecodeSecretKey_Garbage(t *testing.T) {
	if _, err := DecodeSecretKey("not-a-key"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestPair_StringHidesSecret(t *testing.T) {
	_, nsec := genNsec(t)
	pair, err := DecodeSecretKey(nsec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(pair.String(), pair.Secret) {
		t.Error("String() leaked the secret key")
	}
}

func TestParsePubKey(t *testing.T) {
	pk, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	if err := ParsePubKey(pk); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	if err := ParsePubKey(pk[:62]); err == nil {
		t.Error("expected error for short key")
	}
	if err := ParsePubKey(strings.Repeat("zz", 32)); err == nil {
		t.Error("expected error for non-hex key")
	}
	// x >= field prime is not a valid curve point
	if err := ParsePubKey(strings.Repeat("ff", 32)); err == nil {
		t.Error("expected error for off-curve key")
	}
}

func TestDecodeEventID(t *testing.T) {
	b, err := DecodeEventID(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(b))
	}
	if _, err := DecodeEventID("abcd"); err == nil {
		t.Error("expected error for short id")
	}
}
