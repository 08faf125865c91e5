package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const DefaultAPIBaseURL = "https://api.telegram.org"

const ParseModeHTML = "HTML"

// Bot API flood limit for a single bot across all chats.
const maxCallsPerSecond = 30

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewClient talks to the Bot API at baseURL (DefaultAPIBaseURL when empty)
// with the given bot token.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	rc := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(fmt.Sprintf("%s/bot%s", baseURL, token)).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	return &Client{http: rc, limiter: rate.NewLimiter(rate.Limit(maxCallsPerSecond), maxCallsPerSecond)}
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	// Decode whatever the Content-Type says; error bodies from proxies
	// often come back as text/plain.
	var res apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetBody(body).
		SetResult(&res).
		SetError(&res).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !res.OK {
		return &APIError{Method: method, Code: max(res.ErrorCode, resp.StatusCode()), Description: res.Description}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

type MessageOptions struct {
	ParseMode        string
	ReplyToMessageID int64
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts MessageOptions) (*Message, error) {
	body := map[string]any{"chat_id": chatID, "text": text}
	if opts.ParseMode != "" {
		body["parse_mode"] = opts.ParseMode
	}
	if opts.ReplyToMessageID != 0 {
		body["reply_parameters"] = map[string]any{
			"message_id":                  opts.ReplyToMessageID,
			"allow_sending_without_reply": true,
		}
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendPoll opens a regular poll. Non-anonymous polls report every answer
// back as a poll_answer update.
func (c *Client) SendPoll(ctx context.Context, chatID int64, question string, options []string, anonymous bool) (*Message, error) {
	opts := make([]map[string]string, len(options))
	for i, o := range options {
		opts[i] = map[string]string{"text": o}
	}
	body := map[string]any{
		"chat_id":      chatID,
		"question":     question,
		"options":      opts,
		"is_anonymous": anonymous,
	}
	var msg Message
	if err := c.call(ctx, "sendPoll", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// StopPoll closes the poll and returns its final counts.
func (c *Client) StopPoll(ctx context.Context, chatID, messageID int64) (*Poll, error) {
	var poll Poll
	err := c.call(ctx, "stopPoll", map[string]any{"chat_id": chatID, "message_id": messageID}, &poll)
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{"chat_id": chatID, "message_id": messageID}, nil)
}

// SetWebhook registers url. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "poll_answer"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", body, nil)
}
