package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_StructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info().Str("round_id", "7").Msg("round running")

	var output map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &output)
	require.NoError(t, err, "logger output should be valid JSON")

	assert.Equal(t, "round running", output["message"])
	assert.Equal(t, "7", output["round_id"])
	assert.Equal(t, "info", output["level"])
	assert.Contains(t, output, "time")
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{name: "debug passes everything", level: "debug", wantDebug: true, wantInfo: true},
		{name: "info filters debug", level: "info", wantDebug: false, wantInfo: true},
		{name: "error filters info", level: "error", wantDebug: false, wantInfo: false},
		{name: "unknown defaults to info", level: "weird", wantDebug: false, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tt.level, &buf)

			log.Debug().Msg("debug line")
			assert.Equal(t, tt.wantDebug, buf.Len() > 0)

			buf.Reset()
			log.Info().Msg("info line")
			assert.Equal(t, tt.wantInfo, buf.Len() > 0)
		})
	}
}

func TestNew_PrettyMode(t *testing.T) {
	// pretty mode writes to stdout; just make sure it builds and logs
	log := New("info", true)
	log.Info().Msg("pretty mode test")
}
