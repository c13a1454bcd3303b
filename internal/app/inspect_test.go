package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/news"
	"github.com/deusflow/sitewatch/internal/storage"
)

func TestInspectState(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	st := news.NewState(10)
	for _, id := range []string{"a", "b", "c"} {
		st.Sent.Add(id)
	}
	require.NoError(t, store.Save(ctx, "blog", news.ModeSet, st))

	sources := []config.Source{
		{Name: "blog", URL: "https://example.test/blog", Kind: config.KindHTML},
		{Name: "page", URL: "https://example.test/", Kind: config.KindHash},
	}

	var buf bytes.Buffer
	require.NoError(t, InspectState(ctx, &buf, store, sources, 10, 2))
	out := buf.String()

	assert.Contains(t, out, "State of 2 sources:")
	assert.Contains(t, out, "sent: 3/10")
	assert.Contains(t, out, "  - c\n  - b\n")
	assert.NotContains(t, out, "  - a\n")
	assert.Contains(t, out, "hash: (no baseline yet)")
}
