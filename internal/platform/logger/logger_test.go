package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json handler with service attribute", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf, "info", "json").Info("cascade decided", "decision", "MATCH")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "facegate", line["service"])
		assert.Equal(t, "MATCH", line["decision"])
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf, "warn", "text").Info("ignored")
		assert.Empty(t, buf.String())
	})
}
