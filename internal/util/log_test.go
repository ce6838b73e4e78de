package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug", "json")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid", "json")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}

	logger = NewLogger("", "")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %s", logger.GetLevel())
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")
	logger.Info().Str("symbol", "btcusdt").Msg("connected")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["symbol"] != "btcusdt" || entry["time"] == nil {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	buf.Reset()
	logger = newLogger(&buf, "info", "console")
	logger.Info().Msg("connected")
	if !strings.Contains(buf.String(), "connected") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console line, got %q", buf.String())
	}
}
