// Package note defines the harvested note record and its validation,
// structural deduplication and ordering.
package note

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/nbd-wtf/go-nostr"

	"github.com/jobstr/harvester/internal/core/canonicaljson"
	"github.com/jobstr/harvester/internal/core/keys"
)

// requiredFields are the JSON members every record must carry.
var requiredFields = []string{"content", "pubkey", "created_at", "sig", "tags", "id"}

// Record is one note fetched from a relay, in output-file shape.
type Record struct {
	Content   string          `json:"content"`
	PubKey    string          `json:"pubkey"`
	CreatedAt nostr.Timestamp `json:"created_at"`
	Sig       string          `json:"sig"`
	Tags      nostr.Tags      `json:"tags"`
	ID        string          `json:"id"`
}

// FromEvent converts a relay event into a validated Record. The signature is
// carried through untouched; it is never verified.
func FromEvent(ev *nostr.Event) (Record, error) {
	if ev == nil {
		return Record{}, fmt.Errorf("nil event")
	}
	r := Record{
		Content:   ev.Content,
		PubKey:    ev.PubKey,
		CreatedAt: ev.CreatedAt,
		Sig:       ev.Sig,
		Tags:      ev.Tags,
		ID:        ev.ID,
	}
	if r.Tags == nil {
		r.Tags = nostr.Tags{}
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Parse decodes one JSON record, rejecting missing members as well as
// malformed values.
func Parse(raw json.RawMessage) (Record, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return Record{}, fmt.Errorf("record must be a JSON object: %w", err)
	}
	for _, name := range requiredFields {
		if _, ok := members[name]; !ok {
			return Record{}, fmt.Errorf("missing field %q", name)
		}
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if r.Tags == nil {
		return Record{}, fmt.Errorf("tags must be an array")
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ParseList decodes a JSON array of records.
func ParseList(data []byte) ([]Record, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("records must be a JSON array: %w", err)
	}
	out := make([]Record, 0, len(raws))
	for i, raw := range raws {
		r, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Validate checks field shapes.
func (r *Record) Validate() error {
	if _, err := keys.DecodeEventID(r.ID); err != nil {
		return err
	}
	if err := keys.ParsePubKey(r.PubKey); err != nil {
		return err
	}
	if r.CreatedAt <= 0 {
		return fmt.Errorf("created_at must be positive, got %d", r.CreatedAt)
	}
	if r.Sig == "" {
		return fmt.Errorf("sig is required")
	}
	for i, tag := range r.Tags {
		if tag == nil {
			return fmt.Errorf("tags[%d] must be an array", i)
		}
	}
	return nil
}

// Key is the structural identity of r: its canonical JSON encoding.
func (r Record) Key() (string, error) {
	b, err := canonicaljson.Canonicalize(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Fingerprint is the hex sha256 of Key.
func (r Record) Fingerprint() (string, error) {
	return canonicaljson.Fingerprint(r)
}

// Preview returns the first n runes of the content on a single line.
func (r Record) Preview(n int) string {
	return truncate(strings.Join(strings.Fields(r.Content), " "), n)
}

type keyed struct {
	rec Record
	key string
}

// Dedup collapses records that are equal in every field and returns the
// survivors ordered by created_at, id, then canonical key.
func Dedup(records []Record) ([]Record, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	unique := make([]keyed, 0, len(records))
	for _, r := range records {
		key, err := r.Key()
		if err != nil {
			return nil, fmt.Errorf("dedup %s: %w", r.ID, err)
		}
		if seen.Add(key) {
			unique = append(unique, keyed{rec: r, key: key})
		}
	}

	slices.SortFunc(unique, func(a, b keyed) int {
		if c := cmp.Compare(a.rec.CreatedAt, b.rec.CreatedAt); c != 0 {
			return c
		}
		if c := strings.Compare(a.rec.ID, b.rec.ID); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})

	out := make([]Record, len(unique))
	for i, k := range unique {
		out[i] = k.rec
	}
	return out, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
