// Package util holds the HTTP helpers shared by the API handlers: the
// error envelope, limit parsing and the archive page cursor.
package util

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jobstr/harvester/internal/core/keys"
	"github.com/jobstr/harvester/internal/store"
)

// APIError represents a structured error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the top-level error envelope.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a structured error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error: APIError{Code: code, Message: message},
	})
}

// ParseLimit extracts the limit query parameter with default and max bounds.
func ParseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// The archive listing pages by keyset on (created_at, id, fingerprint),
// descending. A cursor is the key of the last note served, JSON-encoded
// and then base64url-encoded without padding, for example
// {"c":1700000000,"i":"<event id>","f":"<fingerprint>"}. The fingerprint
// tells apart structurally different notes that share an event id.

// ParseCursor reads the cursor query parameter. It returns nil without
// an error when the parameter is absent.
func ParseCursor(r *http.Request) (*store.Cursor, error) {
	s := r.URL.Query().Get("cursor")
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("cursor is not base64url: %w", err)
	}
	var c store.Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("cursor is not json: %w", err)
	}
	if c.CreatedAt <= 0 {
		return nil, errors.New("cursor created_at must be positive")
	}
	if _, err := keys.DecodeEventID(c.ID); err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	if b, err := hex.DecodeString(c.Fingerprint); err != nil || len(b) != sha256.Size {
		return nil, errors.New("cursor fingerprint must be a hex sha256")
	}
	return &c, nil
}

// EncodeCursor is the inverse of ParseCursor. A nil cursor encodes as "".
func EncodeCursor(c *store.Cursor) string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}
