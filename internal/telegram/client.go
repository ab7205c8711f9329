// Package telegram implements the gateway contract on top of the Telegram
// Bot API using long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tgrelay/pkg/gateway"
	"tgrelay/pkg/logger"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Config configures the client.
type Config struct {
	Token       string
	BaseURL     string
	PollTimeout time.Duration

	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client
}

// Client is a Bot API client. It satisfies gateway.Gateway.
type Client struct {
	http        *http.Client
	baseURL     string
	token       string
	pollTimeout time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	offset int64
}

var _ gateway.Gateway = (*Client)(nil)

// New creates a client. It does not contact the API; call GetMe to verify
// the token.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// must exceed the long-poll timeout
		httpClient = &http.Client{Timeout: cfg.PollTimeout + 30*time.Second}
	}
	return &Client{
		http:        httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		pollTimeout: cfg.PollTimeout,
		log:         logger.Component(log, "telegram"),
	}
}

// BotInfo describes the bot account behind the token.
type BotInfo struct {
	ID       int64
	Username string
}

// GetMe verifies the token and returns the bot account.
func (c *Client) GetMe(ctx context.Context) (BotInfo, error) {
	var u user
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return BotInfo{}, classify("getMe", err)
	}
	return BotInfo{ID: u.ID, Username: u.Username}, nil
}

// Send sends a plain text message.
func (c *Client) Send(ctx context.Context, chatID int64, text string, opts gateway.SendOptions) (int64, error) {
	if strings.TrimSpace(text) == "" {
		text = "(empty)"
	}
	req := sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: opts.ReplyTo,
	}
	if len(opts.Controls) > 0 {
		row := make([]inlineKeyboardButton, 0, len(opts.Controls))
		for _, ctl := range opts.Controls {
			row = append(row, inlineKeyboardButton{Text: ctl.Label, CallbackData: ctl.Data})
		}
		req.ReplyMarkup = &inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{row}}
	}

	var out message
	if err := c.call(ctx, "sendMessage", req, &out); err != nil {
		return 0, classify("sendMessage", err)
	}
	return out.MessageID, nil
}

// EditText replaces the text of a message. The inline keyboard is dropped.
func (c *Client) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	req := editMessageTextRequest{ChatID: chatID, MessageID: messageID, Text: text}
	if err := c.call(ctx, "editMessageText", req, nil); err != nil {
		return classify("editMessageText", err)
	}
	return nil
}

// AnswerInteraction answers a callback query with a toast notice.
func (c *Client) AnswerInteraction(ctx context.Context, interactionID, notice string) error {
	req := answerCallbackQueryRequest{CallbackQueryID: interactionID, Text: notice}
	if err := c.call(ctx, "answerCallbackQuery", req, nil); err != nil {
		return classify("answerCallbackQuery", err)
	}
	return nil
}

// Poll long-polls getUpdates and converts the result to events. An idle
// poll returns (nil, nil). The offset only advances past updates that were
// received, so nothing is confirmed before it is returned.
func (c *Client) Poll(ctx context.Context) ([]gateway.Event, error) {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(c.pollTimeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query"},
	}

	var updates []update
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isPollTimeout(err) {
			c.log.Debug().Err(err).Msg("get updates timed out")
			return nil, nil
		}
		return nil, classify("getUpdates", err)
	}

	next := offset
	events := make([]gateway.Event, 0, len(updates))
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		if ev, ok := toEvent(u); ok {
			events = append(events, ev)
		}
	}

	c.mu.Lock()
	c.offset = next
	c.mu.Unlock()
	return events, nil
}

// call POSTs payload as JSON to method and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	_ = resp.Body.Close()

	var env apiResponse
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		apiErr := &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			Description: env.Description,
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		if apiErr.Description == "" && decodeErr != nil {
			apiErr.Description = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s: %w", method, decodeErr)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
