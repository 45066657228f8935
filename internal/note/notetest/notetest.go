// Package notetest builds deterministic notes and relay events for tests.
package notetest

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/jobstr/harvester/internal/note"
)

// Valid x-only public keys (x coordinates of G and 2G).
const (
	PubKeyA = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	PubKeyB = "c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
)

// BaseTime is the created_at of Event(0).
const BaseTime nostr.Timestamp = 1700000000

// ID returns a deterministic 64-char hex id for n.
func ID(n int) string {
	return fmt.Sprintf("%064x", n+1)
}

// Event returns a well-formed jobstr text note numbered n.
func Event(n int) *nostr.Event {
	return &nostr.Event{
		ID:        ID(n),
		PubKey:    PubKeyA,
		CreatedAt: BaseTime + nostr.Timestamp(n),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{{"t", "jobstr"}},
		Content:   fmt.Sprintf("hiring: role #%d", n),
		Sig:       strings.Repeat("ab", 64),
	}
}

// Record returns the record form of Event(n).
func Record(n int) note.Record {
	ev := Event(n)
	return note.Record{
		Content:   ev.Content,
		PubKey:    ev.PubKey,
		CreatedAt: ev.CreatedAt,
		Sig:       ev.Sig,
		Tags:      ev.Tags,
		ID:        ev.ID,
	}
}
