package domain

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Cursor marks the last item of a returned page. The wire form is an opaque
// base64 token; callers never construct or inspect it. It is not a security
// boundary and carries no secrets.
type Cursor struct {
	ID    string    `json:"id"`
	Value time.Time `json:"v"`
}

func (c Cursor) Encode() string {
	payload, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeCursor parses an opaque cursor token. Malformed or tampered tokens
// report ok=false and are treated by callers as "start of result set".
func DecodeCursor(token string) (Cursor, bool) {
	if token == "" {
		return Cursor{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, false
	}
	var c Cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		return Cursor{}, false
	}
	if c.ID == "" || c.Value.IsZero() {
		return Cursor{}, false
	}
	return c, true
}
