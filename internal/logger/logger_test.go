package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, "JSON")
	log.Info("cycle done", "source", "blog", "new", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "cycle done", rec["msg"])
	assert.Equal(t, "blog", rec["source"])
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false, "text").Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, true, "text").Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
