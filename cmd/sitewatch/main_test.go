package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/logger"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = logger.New(&buf, false, "json")
	t.Cleanup(func() { logger.Logger = prev })
	return &buf
}

func TestLogFatal_ConfigError(t *testing.T) {
	buf := captureLog(t)

	err := fmt.Errorf("startup: %w", &config.Error{Key: "BOT_TOKEN", Err: errors.New("is required")})
	logFatal(err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "configuration error", rec["msg"])
	assert.Equal(t, "BOT_TOKEN", rec["key"])
	assert.Contains(t, rec["error"], "is required")
}

func TestLogFatal_OtherError(t *testing.T) {
	buf := captureLog(t)

	logFatal(errors.New("open state store: permission denied"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sitewatch failed", rec["msg"])
}
