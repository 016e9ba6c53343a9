package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	original := Cursor{ID: "entry-42", Value: ts}

	token := original.Encode()
	require.NotEmpty(t, token)

	decoded, ok := DecodeCursor(token)
	require.True(t, ok)
	assert.Equal(t, original.ID, decoded.ID)
	assert.True(t, original.Value.Equal(decoded.Value))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not base64 !!!",
		"bm90IGpzb24",               // valid base64, not json
		"e30",                       // {} decodes but has no id
		"eyJpZCI6ImEifQ",            // {"id":"a"} missing timestamp
		"eyJ2IjoiMjAyNi0wMS0wMSJ9", // timestamp only
	}
	for _, token := range cases {
		_, ok := DecodeCursor(token)
		assert.False(t, ok, "token %q should not decode", token)
	}
}

func TestDecodeCursorOpaqueTamper(t *testing.T) {
	token := Cursor{ID: "x", Value: time.Now().UTC()}.Encode()
	_, ok := DecodeCursor(token + "=broken")
	assert.False(t, ok)
}
