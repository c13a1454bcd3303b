package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sitewatch/internal/logger"
	"github.com/deusflow/sitewatch/internal/news"
)

type countingLimiter struct{ calls atomic.Int32 }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.calls.Add(1)
	return ctx.Err()
}

func newTestClient(url string, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(url),
		WithRetry(3, time.Millisecond),
		WithLogger(logger.Discard()),
	}
	return New("123:abc", "@chan", append(base, opts...)...)
}

func TestSendMessage_Payload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	lim := &countingLimiter{}
	c := newTestClient(srv.URL, WithLimiter(lim))
	require.NoError(t, c.SendMessage(context.Background(), "<b>hi</b>"))

	assert.Equal(t, "@chan", got["chat_id"])
	assert.Equal(t, "<b>hi</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, true, got["disable_web_page_preview"])
	assert.Equal(t, int32(1), lim.calls.Load())
}

func TestSendMessage_PlainOmitsParseMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithParseMode(""))
	require.NoError(t, c.SendMessage(context.Background(), "plain"))
	_, ok := got["parse_mode"]
	assert.False(t, ok)
}

func TestSendMessage_OKFalseIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendMessage(context.Background(), "x")
	var tgErr *Error
	require.True(t, errors.As(err, &tgErr))
	assert.Equal(t, 400, tgErr.Code)
	assert.Contains(t, tgErr.Description, "chat not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendMessage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).SendMessage(context.Background(), "x"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendMessage_WaitsRetryAfterOnFloodControl(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	start := time.Now()
	require.NoError(t, newTestClient(srv.URL).SendMessage(context.Background(), "x"))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendMessage_RetryAfterIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3600","parameters":{"retry_after":3600}}`))
	}))
	defer srv.Close()

	start := time.Now()
	err := newTestClient(srv.URL).SendMessage(context.Background(), "x")
	var tgErr *Error
	require.True(t, errors.As(err, &tgErr))
	assert.Equal(t, http.StatusTooManyRequests, tgErr.Code)
	assert.Equal(t, time.Hour, tgErr.RetryAfter)
	// too long to wait inside one cycle
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSendMessage_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestClient(url, WithRetry(1, time.Millisecond)).SendMessage(context.Background(), "x")
	var tgErr *Error
	require.True(t, errors.As(err, &tgErr))
	assert.Zero(t, tgErr.Status)
	assert.Error(t, tgErr.Err)
}

func TestNotify_FormatsItem(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	item := news.Item{ID: "a", Title: "Q&A", Link: "https://example.test/a?x=1&y=2"}
	require.NoError(t, newTestClient(srv.URL).Notify(context.Background(), "blog", item))
	assert.Equal(t, "<b>blog</b>\n<a href=\"https://example.test/a?x=1&amp;y=2\">Q&amp;A</a>", got["text"])
}

func TestFormatItem(t *testing.T) {
	published := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	item := news.Item{ID: "id-1", Title: "Odds_and *ends*", Link: "https://example.test/p", PublishedAt: &published}

	assert.Equal(t,
		"*blog*\n[Odds\\_and \\*ends\\*](https://example.test/p)\n2024-03-01 09:30 UTC",
		FormatItem("blog", item, "Markdown"))

	assert.Equal(t,
		"blog\nOdds_and *ends*\nhttps://example.test/p\n2024-03-01 09:30 UTC",
		FormatItem("blog", item, ""))

	v2 := FormatItem("my-blog", news.Item{ID: "x", Title: "v1.2!"}, "MarkdownV2")
	assert.Equal(t, "*my\\-blog*\nv1\\.2\\!", v2)

	// Missing title falls back to the identifier.
	assert.Equal(t, "blog\nid-1", FormatItem("blog", news.Item{ID: "id-1"}, ""))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", Escape("a <b> & c", "HTML"))
	assert.Equal(t, "a <b>", Escape("a <b>", ""))
}
