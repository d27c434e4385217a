package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"":      zap.InfoLevel,
		"debug": zap.DebugLevel,
		"warn":  zap.WarnLevel,
		"error": zap.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestNewWritesDailyFile(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	root := t.TempDir()
	log, err := New(root, false, "warn")
	require.NoError(t, err)
	log.Debugw("dropped")
	log.Warnw("kept", "form", "equipment")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.Contains(t, string(data), `"form":"equipment"`)
	assert.NotContains(t, string(data), "dropped")
	assert.NotContains(t, string(data), "logger online")
	assert.Same(t, log.Desugar(), zap.L())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(t.TempDir(), false, "loud")
	assert.Error(t, err)
}
