package store

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/jobstr/harvester/internal/note"
)

// Cursor represents a pagination cursor for list queries.
type Cursor struct {
	CreatedAt   int64  `json:"c"`
	ID          string `json:"i"`
	Fingerprint string `json:"f"`
}

// noteRow is one archived note as stored.
type noteRow struct {
	Fingerprint string
	ID          string
	PubKey      string
	CreatedAt   int64
	Content     string
	Sig         string
	Tags        []byte
}

func rowFromRecord(r note.Record) (noteRow, error) {
	fp, err := r.Fingerprint()
	if err != nil {
		return noteRow{}, fmt.Errorf("fingerprint %s: %w", r.ID, err)
	}
	tags := r.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return noteRow{}, fmt.Errorf("marshal tags %s: %w", r.ID, err)
	}
	return noteRow{
		Fingerprint: fp,
		ID:          r.ID,
		PubKey:      r.PubKey,
		CreatedAt:   int64(r.CreatedAt),
		Content:     r.Content,
		Sig:         r.Sig,
		Tags:        tagsJSON,
	}, nil
}

func (row noteRow) record() (note.Record, error) {
	var tags nostr.Tags
	if err := json.Unmarshal(row.Tags, &tags); err != nil {
		return note.Record{}, fmt.Errorf("unmarshal tags %s: %w", row.ID, err)
	}
	if tags == nil {
		tags = nostr.Tags{}
	}
	return note.Record{
		Content:   row.Content,
		PubKey:    row.PubKey,
		CreatedAt: nostr.Timestamp(row.CreatedAt),
		Sig:       row.Sig,
		Tags:      tags,
		ID:        row.ID,
	}, nil
}

func (row noteRow) cursor() *Cursor {
	return &Cursor{CreatedAt: row.CreatedAt, ID: row.ID, Fingerprint: row.Fingerprint}
}
