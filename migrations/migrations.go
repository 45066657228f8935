// Package migrations embeds the PostgreSQL schema for the note archive.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{"001_notes.sql"}
