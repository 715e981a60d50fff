package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	log, err := NewWithWriter(&buf, "api-server", "info", "json")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("appointment_id", "a1").Msg("booked")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "api-server", line["service"])
	assert.Equal(t, "a1", line["appointment_id"])
	assert.Equal(t, "booked", line["message"])
}

func TestNewWithWriter_Invalid(t *testing.T) {
	var buf bytes.Buffer

	_, err := NewWithWriter(&buf, "svc", "loud", "json")
	require.Error(t, err)

	_, err = NewWithWriter(&buf, "svc", "info", "xml")
	require.Error(t, err)
}
