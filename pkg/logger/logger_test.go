package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkCarriesComponentAndFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, Setup("debug", path))

	DebugCF("test", "debug line", nil)
	InfoCF("test", "info line", map[string]interface{}{"answer": 42})
	WarnCF("test", "warn line", nil)
	ErrorCF("test", "error line", map[string]interface{}{"error": "boom"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"message":"debug line"`)
	assert.Contains(t, out, `"message":"info line"`)
	assert.Contains(t, out, `"answer":42`)
	assert.Contains(t, out, `"message":"warn line"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Setup("nonsense", path))

	DebugCF("test", "suppressed", nil)
	InfoCF("test", "visible", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "visible")
}
