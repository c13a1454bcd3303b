// Package telegram posts notifications to a chat through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/sitewatch/internal/logger"
	"github.com/deusflow/sitewatch/internal/news"
	"github.com/deusflow/sitewatch/internal/retry"
)

const DefaultBaseURL = "https://api.telegram.org"

// maxRetryAfter bounds how long a flood-control answer may hold a send.
const maxRetryAfter = time.Minute

// Error is a failed send: transport failure or an ok:false answer.
type Error struct {
	Status      int           // HTTP status, 0 on transport failure
	Code        int           // error_code from the API
	Description string        // description from the API
	RetryAfter  time.Duration // parameters.retry_after on flood control
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram send failed: %v", e.Err)
	}
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error { return e.Err }

// Limiter delays sends; see ratelimit.SendLimiter.
type Limiter interface {
	Wait(ctx context.Context) error
}

type Client struct {
	baseURL   string
	token     string
	chatID    string
	parseMode string
	http      *http.Client
	limiter   Limiter
	retry     retry.RetryConfig
	log       *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option          { return func(c *Client) { c.baseURL = u } }
func WithParseMode(mode string) Option     { return func(c *Client) { c.parseMode = mode } }
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithLimiter(l Limiter) Option         { return func(c *Client) { c.limiter = l } }
func WithLogger(l *slog.Logger) Option     { return func(c *Client) { c.log = l } }

// WithRetry sets how many attempts a message gets and the first backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retry = retry.RetryConfig{MaxAttempts: attempts, Delay: delay, Backoff: true}
	}
}

func New(token, chatID string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		token:     token,
		chatID:    chatID,
		parseMode: "HTML",
		http:      &http.Client{Timeout: 30 * time.Second},
		retry:     retry.RetryConfig{MaxAttempts: 2, Delay: 2 * time.Second, Backoff: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Logger
	}
	return c
}

// Notify formats item and sends it.
func (c *Client) Notify(ctx context.Context, source string, item news.Item) error {
	return c.SendMessage(ctx, FormatItem(source, item, c.parseMode))
}

// SendText sends free text (startup notice, alerts), escaped for the parse mode.
func (c *Client) SendText(ctx context.Context, text string) error {
	return c.SendMessage(ctx, Escape(text, c.parseMode))
}

// SendMessage sends an already formatted message, waiting on the shared
// limiter before every attempt.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	attempt := 0
	err := retry.WithRetry(ctx, c.retry, func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(&Error{Err: err})
			}
		}
		err := c.sendMessageOnce(ctx, text)
		if err == nil {
			return nil
		}
		c.log.Warn("telegram send failed", "attempt", attempt, "error", err)
		var apiErr *Error
		// Client errors other than flood control will not get better.
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		if apiErr != nil && apiErr.RetryAfter > 0 && attempt < c.retry.MaxAttempts {
			if apiErr.RetryAfter > maxRetryAfter {
				return retry.Permanent(err)
			}
			if werr := sleepCtx(ctx, apiErr.RetryAfter); werr != nil {
				return retry.Permanent(err)
			}
		}
		return err
	})
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}
	return &Error{Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// sendMessageOnce does one try to send message
func (c *Client) sendMessageOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)

	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if c.parseMode != "" {
		payload["parse_mode"] = c.parseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Debug("failed to close response body", "error", err)
		}
	}(resp.Body)

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &Error{Status: resp.StatusCode, Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return &Error{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !out.OK {
		code := out.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &Error{
			Status:      resp.StatusCode,
			Code:        code,
			Description: out.Description,
			RetryAfter:  time.Duration(out.Parameters.RetryAfter) * time.Second,
		}
	}
	return nil
}
