package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stdattr/internal/testutil"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("json at warn drops info", func(t *testing.T) {
		t.Parallel()
		buf := &testutil.SafeBuffer{}
		logger := newLogger(&Config{LogLevel: "warn", LogFormat: "json"}, buf)

		logger.Info("hidden")
		logger.Warn("shown", "attribute", "title")

		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(buf.String()), &rec))
		assert.Equal(t, "shown", rec["msg"])
		assert.Equal(t, "title", rec["attribute"])
	})

	t.Run("text at debug", func(t *testing.T) {
		t.Parallel()
		buf := &testutil.SafeBuffer{}
		newLogger(&Config{LogLevel: "debug", LogFormat: "text"}, buf).Debug("compiled")
		assert.Contains(t, buf.String(), "level=DEBUG msg=compiled")
	})
}
