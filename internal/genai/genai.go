// Package genai generates Jeeves' persona replies and intent hints with the OpenAI
// chat completions API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/Jeeves/internal/models"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
	// FallbackReply is returned when the completion fails or comes back empty.
	FallbackReply = "It appears, sir, that silence is the better part of valor, for the moment."

	replyTemperature      = 0.4
	replyFrequencyPenalty = 0.2
	classifyMaxTokens     = 4
)

// ErrNoChoicesReturned is returned when a completion has no usable choice.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ErrNoAPIKey is returned by NewClient without an API key.
var ErrNoAPIKey = errors.New("OpenAI API key not set")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey   string
	Model    string
	Timezone string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimezone sets the timezone label mentioned in the reply context.
func WithTimezone(tz string) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat     chatService
	model    string
	timezone string
}

// NewClient initializes a new GenAI client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timezone == "" {
		cfg.Timezone = models.DefaultTimezone
	}
	slog.Debug("GenAI NewClient", "model", cfg.Model, "timezone", cfg.Timezone)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:     completionsAdapter{svc: &cli.Chat.Completions},
		model:    cfg.Model,
		timezone: cfg.Timezone,
	}, nil
}

// ReplyRequest is the input to Reply.
type ReplyRequest struct {
	Text        string
	History     []Turn
	UserName    string
	ChannelName string
}

// Reply returns Jeeves' answer to req. It never fails; problems yield FallbackReply.
func (c *Client) Reply(ctx context.Context, req ReplyRequest) string {
	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(c.model),
		Messages:         c.buildReplyMessages(req),
		Temperature:      openai.Float(replyTemperature),
		PresencePenalty:  openai.Float(0),
		FrequencyPenalty: openai.Float(replyFrequencyPenalty),
	}

	out, err := c.complete(ctx, params)
	if err != nil {
		slog.Error("GenAI Reply failed, using fallback", "error", err, "channel", req.ChannelName)
		return FallbackReply
	}
	return out
}

func (c *Client) buildReplyMessages(req ReplyRequest) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(personaPrompt + "\nContext: " + c.replyContext(req)),
	}
	for _, turn := range req.History {
		switch turn.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	if req.Text != "" {
		messages = append(messages, openai.UserMessage(req.Text))
	}
	return messages
}

type replyContext struct {
	ChannelName *string `json:"channel_name"`
	UserName    *string `json:"user_name"`
	Timezone    string  `json:"timezone"`
	Notes       string  `json:"notes"`
}

func (c *Client) replyContext(req ReplyRequest) string {
	ctx := replyContext{
		ChannelName: nilIfEmpty(req.ChannelName),
		UserName:    nilIfEmpty(req.UserName),
		Timezone:    c.timezone,
		Notes:       contextNotes,
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Intent is a coarse label for what a free-text message is about.
type Intent string

const (
	IntentSchedule Intent = "schedule"
	IntentInvite   Intent = "invite"
	IntentGeneral  Intent = "general"
)

// ClassifyIntent labels text as schedule, invite or general. Any failure yields general.
func (c *Client) ClassifyIntent(ctx context.Context, text, userName, channelName string) Intent {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifyPrompt),
			openai.UserMessage(fmt.Sprintf("Channel:%s User:%s Text:%s", channelName, userName, text)),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(classifyMaxTokens),
	}

	out, err := c.complete(ctx, params)
	if err != nil {
		slog.Warn("GenAI ClassifyIntent failed", "error", err)
		return IntentGeneral
	}
	switch Intent(strings.ToLower(out)) {
	case IntentSchedule:
		return IntentSchedule
	case IntentInvite:
		return IntentInvite
	}
	return IntentGeneral
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrNoChoicesReturned
	}
	return out, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
