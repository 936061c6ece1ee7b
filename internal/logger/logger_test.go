package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	req := require.New(t)
	req.Equal(slog.LevelDebug, ParseLevel("debug"))
	req.Equal(slog.LevelInfo, ParseLevel("info"))
	req.Equal(slog.LevelWarn, ParseLevel("warn"))
	req.Equal(slog.LevelError, ParseLevel("error"))
	req.Equal(slog.LevelInfo, ParseLevel("loud"))
}

func TestNewWithWriter_JSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", true)

	log.Info("dropped")
	log.Warn("kept", "request_id", "abc")

	var record map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &record))
	req.Equal("kept", record["msg"])
	req.Equal("abc", record["request_id"])
}
