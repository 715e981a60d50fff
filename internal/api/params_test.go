package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseInstant(t *testing.T) {
	want := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		raw string
		ok  bool
	}{
		{"2026-01-01T10:00:00Z", true},
		{"2026-01-01T07:00:00-03:00", true},
		{"2026-01-01T10:00:00", true},
		{" 2026-01-01T10:00:00Z ", true},
		{"2026-01-01", false},
		{"", false},
	}

	for _, tt := range tests {
		got, ok := parseInstant(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		if tt.ok {
			assert.True(t, got.Equal(want), tt.raw)
			assert.Equal(t, time.UTC, got.Location(), tt.raw)
		}
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken("abc"))
	assert.Equal(t, "", bearerToken(""))
}
