package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&Config{Level: "info", Format: "json"}, &buf)

	log.Debug("hidden")
	log.Info("print committed", zap.Int64("entry_id", 7))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "print committed", entry["msg"])
	assert.EqualValues(t, 7, entry["entry_id"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("DEBUG").String())
	assert.Equal(t, "warn", parseLevel("warning").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
	assert.Equal(t, "info", parseLevel("fatal").String())
}

func TestNewWithWriter_TimeFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&Config{Format: "json", TimeFormat: "2006"}, &buf)
	log.Info("tick")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Len(t, entry["time"], 4)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, log.Sync())

	_, err = New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "app.log")})
	assert.Error(t, err)
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&Config{Level: "info", Format: "json"}, &buf)

	ctx, _ := WithRequestID(context.Background(), base, "req-123")
	ctx, _ = WithOperatorID(ctx, FromContext(ctx), "op-9")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, "op-9", GetOperatorID(ctx))

	FromContext(ctx).Info("hi")
	require.NoError(t, base.Sync())
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), `"operator_id":"op-9"`)

	assert.NotNil(t, FromContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}
