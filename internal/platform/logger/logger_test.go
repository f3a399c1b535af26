package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"session_id", "s1", "API_KEY", "sk-123", "token", "abc", "dangling"})

	assert.Equal(t, []interface{}{"session_id", "s1", "API_KEY", "[REDACTED]", "token", "[REDACTED]", "dangling"}, out)
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode)
		assert.NoError(t, err, mode)
		assert.NotNil(t, l)
	}
	Nop().Info("discarded", "k", "v")
}
