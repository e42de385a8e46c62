package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "production", "info")

	log.With("component", "register").Info(context.Background(), "account created", "account_id", "abc")

	out := buf.String()
	assert.Contains(t, out, `"msg":"account created"`)
	assert.Contains(t, out, `"component":"register"`)
	assert.Contains(t, out, `"account_id":"abc"`)
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "development", "warn")
	ctx := context.Background()

	log.Debug(ctx, "dbg")
	log.Info(ctx, "inf")
	log.Warn(ctx, "wrn")

	out := buf.String()
	assert.NotContains(t, out, "msg=dbg")
	assert.NotContains(t, out, "msg=inf")
	assert.Contains(t, out, "level=WARN")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
