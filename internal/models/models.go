// Package models defines the core data structures for Jeeves.
//
// It includes the platform-neutral inbound message, the outbound webhook payloads,
// and the API response envelope, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Platform identifies the chat platform a message arrived on.
type Platform string

const (
	// PlatformDiscord is the Discord gateway.
	PlatformDiscord Platform = "discord"
	// PlatformWhatsApp is the Whatsmeow-based WhatsApp gateway.
	PlatformWhatsApp Platform = "whatsapp"
	// PlatformSlack is the Slack Socket Mode gateway.
	PlatformSlack Platform = "slack"
)

// IsValidPlatform checks if the given platform is supported.
func IsValidPlatform(p Platform) bool {
	switch p {
	case PlatformDiscord, PlatformWhatsApp, PlatformSlack:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrInvalidPlatform = errors.New("invalid chat platform")
	ErrEmptyAuthor     = errors.New("message author cannot be empty")
	ErrEmptyChannel    = errors.New("message channel cannot be empty")
)

// User is a chat-platform identity.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Bot  bool   `json:"bot,omitempty"`
}

// Message is an inbound chat event as delivered by a gateway.
type Message struct {
	ID          string    `json:"id"`
	Platform    Platform  `json:"platform"`
	GuildID     string    `json:"guild_id,omitempty"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	ChannelLink string    `json:"channel_link,omitempty"`
	Author      User      `json:"author"`
	Text        string    `json:"text"`
	Mentions    []User    `json:"mentions,omitempty"`
	IsGroup     bool      `json:"is_group"`
	FromSelf    bool      `json:"from_self,omitempty"`
	Time        time.Time `json:"time"`

	// Raw carries the platform event so the gateway can thread its reply.
	Raw any `json:"-"`
}

// Validate checks the fields every handler relies on.
func (m *Message) Validate() error {
	if !IsValidPlatform(m.Platform) {
		return ErrInvalidPlatform
	}
	if m.Author.ID == "" {
		return ErrEmptyAuthor
	}
	if m.ChannelID == "" {
		return ErrEmptyChannel
	}
	return nil
}

// MentionIDs returns the IDs of mentioned users in order.
func (m *Message) MentionIDs() []string {
	ids := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		if u.ID != "" {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
